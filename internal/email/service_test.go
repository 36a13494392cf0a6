package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "lomake@example.fi",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.fi",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.fi",
				Port: "587",
				From: "lomake@example.fi",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSubmissionTemplateRenders(t *testing.T) {
	html, err := renderTemplate(submissionEmailTemplate, SubmissionData{
		CustomerName:  "Matti Meikäläinen",
		CustomerEmail: "matti@example.fi",
		FormURL:       "https://lomake.example.fi/form/abc123",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"Matti Meikäläinen",
		"matti@example.fi",
		"https://lomake.example.fi/form/abc123",
		"Uusi lomake saapunut",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("template missing %q", want)
		}
	}
}

func TestSendWithoutConfigFails(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendHTMLEmail([]string{"x@example.fi"}, "s", "t", "<p>h</p>"); err == nil {
		t.Fatalf("expected error when unconfigured")
	}
}
