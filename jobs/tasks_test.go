package jobs

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestDatePayloadValidation(t *testing.T) {
	v := validator.New()

	require.NoError(t, v.Struct(DatePayload{}), "cron registrations enqueue an empty payload")
	require.NoError(t, v.Struct(DatePayload{Date: "2024-05-01"}))
	require.Error(t, v.Struct(DatePayload{Date: "not-a-date"}))
	require.Error(t, v.Struct(DatePayload{Date: "01/05/2024"}))
}

func TestResolveDateDefaultsToCurrentDay(t *testing.T) {
	date, str, err := DatePayload{}.resolveDate()
	require.NoError(t, err)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	require.True(t, date.Equal(today))
	require.Equal(t, today.Format("2006-01-02"), str)

	date, str, err = DatePayload{Date: "2024-07-15"}.resolveDate()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), date)
	require.Equal(t, "2024-07-15", str)
}
