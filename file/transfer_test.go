package file

import "testing"

func TestTransferStateString(t *testing.T) {
	cases := []struct {
		state TransferState
		want  string
	}{
		{TransferOffered, "offered"},
		{TransferAccepted, "accepted"},
		{TransferSending, "sending"},
		{TransferSent, "sent"},
		{TransferTimedOut, "timed_out"},
		{TransferState(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("TransferState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
