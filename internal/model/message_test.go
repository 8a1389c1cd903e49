package model

import "testing"

// TestMessageStatus_Valid は既知の3状態のみが有効と判定されることを検証する。
func TestMessageStatus_Valid(t *testing.T) {
	tests := []struct {
		status MessageStatus
		want   bool
	}{
		{StatusSent, true},
		{StatusDelivered, true},
		{StatusRead, true},
		{MessageStatus("archived"), false},
		{MessageStatus(""), false},
	}

	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// TestMessageStatus_Before は状態の前後関係が sent → delivered → read の
// 順序に従うことを検証する。
func TestMessageStatus_Before(t *testing.T) {
	tests := []struct {
		s     MessageStatus
		other MessageStatus
		want  bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusDelivered, StatusSent, false},
		{StatusRead, StatusDelivered, false},
		{StatusRead, StatusRead, false},
		{StatusSent, StatusSent, false},
	}

	for _, tt := range tests {
		if got := tt.s.Before(tt.other); got != tt.want {
			t.Errorf("Before(%q, %q) = %v, want %v", tt.s, tt.other, got, tt.want)
		}
	}
}
