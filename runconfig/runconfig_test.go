package runconfig

import "testing"

func TestDiskSelected(t *testing.T) {
	cases := []struct {
		name    string
		cfg     RunConfig
		target  string
		want    bool
	}{
		{"no filters selects everything", RunConfig{}, "vda", true},
		{"include list restricts", RunConfig{IncludeDisks: []string{"vda"}}, "vdb", false},
		{"include list allows listed", RunConfig{IncludeDisks: []string{"vda"}}, "vda", true},
		{"exclude wins over include", RunConfig{IncludeDisks: []string{"vda"}, ExcludeDisks: []string{"vda"}}, "vda", false},
		{"exclude alone restricts", RunConfig{ExcludeDisks: []string{"vdb"}}, "vdb", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.DiskSelected(tc.target); got != tc.want {
				t.Errorf("DiskSelected(%q) = %v, want %v", tc.target, got, tc.want)
			}
		})
	}
}
