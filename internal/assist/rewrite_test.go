package assist

import "testing"

func TestCoreWording(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{"I feel like a hurt person", "hurt person"},
		{"someone who is unlovable.", "unlovable"},
		{"I believe that nobody listens to me", "nobody listens to me"},
		{"  Worthless!  ", "worthless"},
		{"I'm a people-pleaser", "people-pleaser"},
		{"I feel like", ""},
		{"a kind person", "kind person"},
		{"I just want to be liked", "just want to be liked"},
		{"kind of lost", "lost"},
		{"being ignored", "being ignored"},
	}
	for _, tt := range tests {
		if got := CoreWording(tt.answer); got != tt.want {
			t.Errorf("CoreWording(%q) = %q, want %q", tt.answer, got, tt.want)
		}
	}
}

func TestPreservesWording(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		answer string
		want   bool
	}{
		{"kept together", "Feel yourself being a hurt person. What does it feel like?", "I feel like a hurt person", true},
		{"noun dropped", "Feel yourself being hurt. What does it feel like?", "I feel like a hurt person", false},
		{"synonym", "Feel yourself being a wounded person.", "hurt person", false},
		{"reordered", "Feel yourself being a person who is hurt.", "hurt person", false},
		{"case and spacing", "Feel yourself being A  HURT\nPERSON.", "a hurt person", true},
		{"nothing to keep", "Feel yourself being it.", "I feel like", false},
		{"leading adjective dropped", "Feel yourself being a person. What does it feel like?", "a kind person", false},
		{"leading adjective kept", "Feel yourself being a kind person. What does it feel like?", "a kind person", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreservesWording(tt.out, tt.answer); got != tt.want {
				t.Errorf("PreservesWording(%q, %q) = %v, want %v", tt.out, tt.answer, got, tt.want)
			}
		})
	}
}
