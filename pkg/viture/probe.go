package viture

// Probe is a named command variant used to explore the control protocol.
type Probe struct {
	Name   string `json:"name"`
	Code   byte   `json:"code"`
	Param  uint16 `json:"param"`
	Flag   byte   `json:"flag"`
	Target byte   `json:"target"`
}

func (p Probe) Command() []byte {
	return EncodeLong(p.Code, p.Param, p.Flag, p.Target)
}

// Probes are the variants around the known stereo trigger.
var Probes = []Probe{
	{"trigger", CmdStereo, TriggerSize, TriggerFlag, 0},
	{"right camera", CmdStereo, TriggerSize, TriggerFlag, 1},
	{"no flag", CmdStereo, TriggerSize, 0, 0},
	{"code 0x01", 0x01, TriggerSize, TriggerFlag, 0},
	{"code 0x00", 0x00, TriggerSize, TriggerFlag, 0},
	{"small size", CmdStereo, 0x0040, TriggerFlag, 0},
}

type ProbeResult struct {
	Probe    Probe     `json:"probe"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Scan sends every probe with Send and collects the outcome. It stops early
// on a transport error since the handle is then unusable.
func (c *Client) Scan(probes []Probe) ([]ProbeResult, error) {
	if c.busy.Load() {
		return nil, ErrBusy
	}

	results := make([]ProbeResult, 0, len(probes))

	for _, p := range probes {
		res, err := c.Send(p.Command())
		r := ProbeResult{Probe: p, Response: res}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)

		if err != nil && !IsTimeout(err) {
			return results, err
		}

		if res != nil {
			c.log.Debug().Str("probe", p.Name).Stringer("response", res).Msg("[viture] probe")
		}
	}

	return results, nil
}
