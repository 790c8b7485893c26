package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	runID := UUIDToBytes(uuid.New())
	now := time.Now()
	testCases := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "missing run id", evt: Event{TS: now, Stage: StageRunStart}, wantErr: "run id is required"},
		{name: "missing ts", evt: Event{RunID: runID, Stage: StageRunStart}, wantErr: "timestamp is required"},
		{name: "unknown stage", evt: Event{RunID: runID, TS: now, Stage: "NOPE"}, wantErr: `unknown stage "NOPE"`},
		{name: "item without url", evt: Event{RunID: runID, TS: now, Stage: StageItemDone, StatusClass: Status2xx}, wantErr: "ITEM_DONE requires url"},
		{name: "item without status", evt: Event{RunID: runID, TS: now, Stage: StageItemError, URL: "u"}, wantErr: "ITEM_ERROR requires status class"},
		{name: "negative duration", evt: Event{RunID: runID, TS: now, Stage: StageRunDone, Dur: -1}, wantErr: "duration must be >= 0"},
		{name: "valid run", evt: Event{RunID: runID, TS: now, Stage: StageRunDone}},
		{name: "valid item", evt: Event{RunID: runID, TS: now, Stage: StageItemError, URL: "u", StatusClass: StatusNone}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]StatusClass{
		0:   StatusNone,
		200: Status2xx,
		301: Status3xx,
		404: Status4xx,
		503: Status5xx,
		99:  StatusOther,
	}
	for code, want := range cases {
		require.Equal(t, want, ClassifyStatus(code), "code %d", code)
	}
}

func TestParseRunID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{RunID: ParseRunID(id.String())}
	require.Equal(t, id, evt.RunUUID())
	require.Equal(t, [16]byte{}, ParseRunID("not-a-uuid"))
}
