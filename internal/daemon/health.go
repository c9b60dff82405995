package daemon

// ComponentHealth describes readiness for one daemon component.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthyComponent returns a ready ComponentHealth.
func HealthyComponent(name string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: true}
}

// UnhealthyComponent returns a not-ready ComponentHealth with detail.
func UnhealthyComponent(name, detail string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: false, Detail: detail}
}

func allReady(components []ComponentHealth) bool {
	for _, c := range components {
		if !c.Ready {
			return false
		}
	}
	return true
}
