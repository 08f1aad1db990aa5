package store

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
)

func TestQueryTimeoutDefaults(t *testing.T) {
    s := New(nil, nil, 0)
    assert.Equal(t, defaultQueryTimeout, s.queryTimeout)

    s = New(nil, nil, 2*time.Second)
    assert.Equal(t, 2*time.Second, s.queryTimeout)
}

func TestQueryCtxCarriesDeadline(t *testing.T) {
    s := New(nil, nil, 250*time.Millisecond)

    ctx, cancel := s.queryCtx(context.Background())
    defer cancel()

    deadline, ok := ctx.Deadline()
    require.True(t, ok, "store queries must run under a deadline")
    assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), deadline, 100*time.Millisecond)
}

func TestValidateDialplanEntry(t *testing.T) {
    valid := func() *models.DialplanEntry {
        return &models.DialplanEntry{
            Name:                "night_bell",
            ConditionField:      "destination_number",
            ConditionExpression: `^7\d{2}$`,
            Actions: []models.DialplanAction{
                {Application: "answer"},
                {Application: "playback", Data: "custom/night.wav"},
            },
        }
    }

    require.NoError(t, validateDialplanEntry(valid()))

    tests := []struct {
        name   string
        mutate func(*models.DialplanEntry)
    }{
        {"missing name", func(e *models.DialplanEntry) { e.Name = "" }},
        {"missing expression", func(e *models.DialplanEntry) { e.ConditionExpression = "" }},
        {"uncompilable expression", func(e *models.DialplanEntry) { e.ConditionExpression = `^7(\d{2}$` }},
        {"quote in expression", func(e *models.DialplanEntry) { e.ConditionExpression = `^7"\d{2}$` }},
        {"angle bracket in expression", func(e *models.DialplanEntry) { e.ConditionExpression = `^<711>$` }},
        {"missing action application", func(e *models.DialplanEntry) { e.Actions[0].Application = "" }},
        {"quote in action data", func(e *models.DialplanEntry) { e.Actions[1].Data = `play "this"` }},
        {"ampersand in action data", func(e *models.DialplanEntry) { e.Actions[1].Data = "a&b.wav" }},
    }

    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            entry := valid()
            tc.mutate(entry)

            err := validateDialplanEntry(entry)
            require.Error(t, err)

            appErr, ok := err.(*errors.AppError)
            require.True(t, ok)
            assert.Equal(t, 400, appErr.StatusCode)
        })
    }
}
