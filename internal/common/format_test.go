package common

import "testing"

func TestFormatCoins(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "0 coins"},
		{1, "1 coin"},
		{-1, "-1 coin"},
		{20, "20 coins"},
		{-9, "-9 coins"},
	}
	for _, tt := range tests {
		if got := FormatCoins(tt.amount); got != tt.want {
			t.Errorf("FormatCoins(%d) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestFormatAccountLine(t *testing.T) {
	got := FormatAccountLine(AccountInfo{Name: "Carol", Email: "carol@example.com", IsAdmin: true, Balance: 20})
	want := "Carol <carol@example.com> [admin]: 20 coins"
	if got != want {
		t.Errorf("FormatAccountLine = %q, want %q", got, want)
	}
}
