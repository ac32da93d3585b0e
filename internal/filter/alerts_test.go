package filter

import (
	"testing"

	"minisiem/pkg/models"
)

func TestOnlyAlerts(t *testing.T) {
	cases := []struct {
		name  string
		event models.Event
		want  bool
	}{
		{"alert", models.Event{"event_type": "alert", "src_ip": "10.0.0.1"}, true},
		{"flow", models.Event{"event_type": "flow"}, false},
		{"dns", models.Event{"event_type": "dns"}, false},
		{"uppercase", models.Event{"event_type": "ALERT"}, false},
		{"padded", models.Event{"event_type": " alert"}, false},
		{"non-string", models.Event{"event_type": 1}, false},
		{"missing", models.Event{"alert": map[string]interface{}{"signature": "x"}}, false},
		{"empty", models.Event{}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := OnlyAlerts(tc.event); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
