package vast

import "strconv"

// Instance is one rented instance as the provider reports it. Only the
// fields the monitor and the listing command consume are mapped.
type Instance struct {
	ID           int     `json:"id"`
	Label        string  `json:"label"`
	MachineID    int     `json:"machine_id"`
	GPUName      string  `json:"gpu_name"`
	NumGPUs      int     `json:"num_gpus"`
	ActualStatus string  `json:"actual_status"`
	DPHTotal     float64 `json:"dph_total"`
}

// listResponse mirrors the provider's list payload.
type listResponse struct {
	Instances []Instance `json:"instances"`
}

// errorResponse mirrors the provider's error payload.
type errorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
}

// Match filters instances by target: an all-digit target matches the
// instance id, anything else matches the exact label.
func Match(instances []Instance, target string) []Instance {
	var out []Instance
	if id, err := strconv.Atoi(target); err == nil {
		for _, in := range instances {
			if in.ID == id {
				out = append(out, in)
			}
		}
		return out
	}
	for _, in := range instances {
		if in.Label == target {
			out = append(out, in)
		}
	}
	return out
}
