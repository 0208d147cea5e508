package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	// Header is nil for captures written without one.
	Header *log.FileHeader

	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Ports             map[string]*PortStats
	Services          map[wire.Service]*ServiceStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// PortStats holds statistics for one open of a port.
type PortStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Device    string
}

// ServiceStats counts messages of one service.
type ServiceStats struct {
	Requests    int
	Responses   int
	Indications int
	Failures    int

	// TotalElapsed sums the durations of responses that carried one.
	TotalElapsed time.Duration
	Timed        int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

// CollectStats reads every event of the file at path.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Ports:             make(map[string]*PortStats),
		Services:          make(map[wire.Service]*ServiceStats),
		Header:            reader.Header(),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	port, ok := s.Ports[event.PortID]
	if !ok {
		port = &PortStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Ports[event.PortID] = port
	}
	port.Events++
	if event.Timestamp.After(port.LastSeen) {
		port.LastSeen = event.Timestamp
	}
	if port.Device == "" {
		port.Device = event.Device
	}

	if msg := event.Message; msg != nil {
		svc := wire.Service(msg.Service)
		ss, ok := s.Services[svc]
		if !ok {
			ss = &ServiceStats{}
			s.Services[svc] = ss
		}
		switch msg.Type {
		case log.MessageTypeRequest:
			ss.Requests++
		case log.MessageTypeResponse:
			ss.Responses++
			if msg.Result != nil && *msg.Result != 0 {
				ss.Failures++
			}
			if msg.Elapsed != nil {
				ss.TotalElapsed += *msg.Elapsed
				ss.Timed++
			}
		case log.MessageTypeIndication:
			ss.Indications++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== QMI Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if h := stats.Header; h != nil {
		fmt.Fprintf(w, "Format:     v%d, frames kept up to %d bytes\n", h.Version, h.MaxFrameData)
		if h.Host != "" {
			fmt.Fprintf(w, "Host:       %s\n", h.Host)
		}
		fmt.Fprintf(w, "Created:    %s\n", h.Created.Format(time.RFC3339))
		fmt.Fprintln(w)
	}

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerDevice} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Services) > 0 {
		svcs := make([]wire.Service, 0, len(stats.Services))
		for svc := range stats.Services {
			svcs = append(svcs, svc)
		}
		sort.Slice(svcs, func(i, j int) bool { return svcs[i] < svcs[j] })

		fmt.Fprintln(w, "Messages by Service:")
		for _, svc := range svcs {
			ss := stats.Services[svc]
			fmt.Fprintf(w, "  %-8s req %d  resp %d  ind %d  failed %d", svc.String()+":",
				ss.Requests, ss.Responses, ss.Indications, ss.Failures)
			if ss.Timed > 0 {
				fmt.Fprintf(w, "  avg %s", formatDuration(ss.TotalElapsed/time.Duration(ss.Timed)))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Ports: %d\n", len(stats.Ports))
	if len(stats.Ports) > 0 {
		type portInfo struct {
			id    string
			stats *PortStats
		}
		ports := make([]portInfo, 0, len(stats.Ports))
		for id, ps := range stats.Ports {
			ports = append(ports, portInfo{id, ps})
		}
		sort.Slice(ports, func(i, j int) bool {
			return ports[i].stats.FirstSeen.Before(ports[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, p := range ports {
			duration := p.stats.LastSeen.Sub(p.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenPortID(p.id), p.stats.Events, duration)
			if p.stats.Device != "" {
				fmt.Fprintf(w, "           Device: %s\n", p.stats.Device)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
