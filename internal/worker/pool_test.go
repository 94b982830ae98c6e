package worker

import "testing"

func TestFragBufferPoolSizing(t *testing.T) {
	cases := []struct {
		request  int
		wantCap  int
	}{
		{request: 1, wantCap: 4 * 1024},
		{request: 4 * 1024, wantCap: 4 * 1024},
		{request: 5 * 1024, wantCap: 16 * 1024},
		{request: 17 * 1024, wantCap: 64 * 1024},
	}
	for _, tc := range cases {
		buf := GetFragBuffer(tc.request)
		if len(buf) != tc.request {
			t.Errorf("GetFragBuffer(%d): len = %d, want %d", tc.request, len(buf), tc.request)
		}
		if cap(buf) != tc.wantCap {
			t.Errorf("GetFragBuffer(%d): cap = %d, want %d", tc.request, cap(buf), tc.wantCap)
		}
		PutFragBuffer(buf)
	}
}

func TestFragBufferRoundTrip(t *testing.T) {
	buf := GetFragBuffer(100)
	buf[0] = 0xff
	PutFragBuffer(buf)

	again := GetFragBuffer(100)
	if len(again) != 100 {
		t.Errorf("len = %d, want 100", len(again))
	}
}
