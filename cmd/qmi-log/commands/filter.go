package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	PortID    string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Service   string
	ClientID  string
	MessageID string
}

// Filter converts the options to a log.Filter.
func (o FilterOptions) Filter() (log.Filter, error) {
	filter := log.Filter{PortID: o.PortID}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayerFlag(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirectionFlag(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if o.Service != "" {
		svc, err := wire.ParseService(o.Service)
		if err != nil {
			return filter, err
		}
		v := uint8(svc)
		filter.Service = &v
	}
	if o.ClientID != "" {
		n, err := strconv.ParseUint(o.ClientID, 0, 8)
		if err != nil {
			return filter, fmt.Errorf("invalid client id %q: %w", o.ClientID, err)
		}
		v := uint8(n)
		filter.ClientID = &v
	}
	if o.MessageID != "" {
		n, err := strconv.ParseUint(o.MessageID, 0, 16)
		if err != nil {
			return filter, fmt.Errorf("invalid message id %q: %w", o.MessageID, err)
		}
		v := uint16(n)
		filter.MessageID = &v
	}
	return filter, nil
}

// RunFilter filters the log file and writes matching events to a new file.
// It returns the number of events written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.Filter()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
	return count, nil
}
