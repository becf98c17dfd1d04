package schedulerobjects

// Host is a compute node onto which operations are dispatched.
type Host struct {
	Name         string  `json:"name" yaml:"name"`
	HasAccess    bool    `json:"hasAccess" yaml:"hasAccess"`
	MaxCapacity  float64 `json:"maxCapacity" yaml:"maxCapacity"`
	UsedCapacity float64 `json:"usedCapacity" yaml:"usedCapacity"`
}

func (h *Host) AvailableCapacity() float64 {
	available := h.MaxCapacity - h.UsedCapacity
	if available < 0 {
		return 0
	}
	return available
}

func (h *Host) DeepCopy() *Host {
	if h == nil {
		return nil
	}
	rv := *h
	return &rv
}
