package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/knosphere/backend/pkg/ai"
)

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema_description:"IANA timezone name like Europe/Berlin, defaults to UTC"`
}

// NewCurrentTimeTool reports the current date and time, optionally in a
// given IANA timezone.
func NewCurrentTimeTool() ai.Tool {
	return ai.Tool{
		Name:        "current_time",
		Description: "Get the current date and time, optionally in a specific IANA timezone.",
		Parameters:  mustSchema(currentTimeArgs{}),
		Handler: func(_ context.Context, arguments string) (string, error) {
			var args currentTimeArgs
			if err := decodeArgs(arguments, &args); err != nil {
				return "", err
			}

			loc := time.UTC
			if args.Timezone != "" {
				parsed, err := time.LoadLocation(args.Timezone)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", args.Timezone)
				}
				loc = parsed
			}

			now := time.Now().In(loc)
			return fmt.Sprintf("%s (%s)", now.Format("Monday, 2006-01-02 15:04:05"), loc.String()), nil
		},
	}
}
