package model

import "testing"

// TestKindForParticipantCount は参加者指定数から会話種別が導出されることを検証する。
// 判定は未知ID除外前の指定数で行う。
func TestKindForParticipantCount(t *testing.T) {
	tests := []struct {
		count int
		want  ConversationKind
	}{
		{2, KindDirect},
		{3, KindGroup},
		{4, KindGroup},
		{10, KindGroup},
	}

	for _, tt := range tests {
		if got := KindForParticipantCount(tt.count); got != tt.want {
			t.Errorf("KindForParticipantCount(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}
