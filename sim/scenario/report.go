package scenario

import (
	"fmt"
	"io"
	"net/netip"
	"sort"
)

// Print writes a human-readable summary of r to w.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Load Balancing Results ===")
	fmt.Fprintf(w, "Mode / Policy        : %s / %s\n", r.Mode, r.Policy)
	fmt.Fprintf(w, "Simulated Time       : %s (%d events)\n", r.Elapsed, r.Events)
	fmt.Fprintf(w, "Probes Sent          : %d\n", r.Sent)
	fmt.Fprintf(w, "Probes At Server     : %d (%d reordered)\n", r.ServerReceived, r.ServerReordered)
	fmt.Fprintf(w, "Replies At Client    : %d (%d reordered)\n", r.Received, r.ClientReordered)
	fmt.Fprintf(w, "Lost                 : %d\n", r.Lost)
	if r.SendErrors > 0 {
		fmt.Fprintf(w, "Send Errors          : %d\n", r.SendErrors)
	}
	if r.Received > 0 {
		fmt.Fprintf(w, "Mean RTT             : %s\n", r.MeanRTT)
		fmt.Fprintf(w, "Max RTT              : %s\n", r.MaxRTT)
	}

	fmt.Fprintln(w, "=== Path Distribution ===")
	for i, c := range r.PathDistribution {
		share := 0.0
		if r.ServerReceived > 0 {
			share = 100 * float64(c) / float64(r.ServerReceived)
		}
		fmt.Fprintf(w, "Path %-2d              : %d (%.1f%%)\n", i, c, share)
	}

	if len(r.ReplySources) > 0 {
		fmt.Fprintln(w, "=== Reply Sources ===")
		addrs := make([]netip.Addr, 0, len(r.ReplySources))
		for a := range r.ReplySources {
			addrs = append(addrs, a)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
		for _, a := range addrs {
			fmt.Fprintf(w, "%-21s: %d\n", a, r.ReplySources[a])
		}
	}

	if t := r.Trace; t != nil && (t.TotalRoutes > 0 || t.ToServer > 0 || t.Drops > 0) {
		fmt.Fprintln(w, "=== Decision Trace ===")
		fmt.Fprintf(w, "Route Decisions      : %d (%d delegated)\n", t.TotalRoutes, t.Fallbacks)
		fmt.Fprintf(w, "Rewrites             : %d to server, %d to client\n", t.ToServer, t.ToClient)
		fmt.Fprintf(w, "Dropped              : %d\n", t.Drops)
	}
}
