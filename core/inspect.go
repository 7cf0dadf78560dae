package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/encodeous/spfsync/state"
)

// Inspector serves /inspect next to the metric endpoints registered on the default mux
type Inspector struct {
	server *http.Server
	Addr   net.Addr
}

func (i *Inspector) Init(s *state.State) error {
	if s.DebugAddr == "" || s.DebugAddr == "-" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.DefaultServeMux)
	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		res, err := s.DispatchWait(func(s *state.State) (any, error) {
			if q := r.URL.Query().Get("addr"); q != "" {
				return LookupOwner(s, q)
			}
			return Inspect(s), nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, res.(string))
	})

	ln, err := net.Listen("tcp", s.DebugAddr)
	if err != nil {
		return fmt.Errorf("debug listener: %w", err)
	}
	i.Addr = ln.Addr()
	i.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		err := i.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Error("debug server stopped", "err", err)
		}
	}()
	s.Log.Info("debug server listening", "addr", i.Addr.String())
	return nil
}

func (i *Inspector) Cleanup(s *state.State) error {
	if i.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return i.server.Shutdown(ctx)
}

// LookupOwner reports the node whose prefix or address contains addr
func LookupOwner(s *state.State, addr string) (string, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return "", err
	}
	rec, ok := Get[*Syncer](s).Cache.LookupAddr(a.WithZone(""))
	if !ok {
		return fmt.Sprintf("%s: no owner\n", a), nil
	}
	return fmt.Sprintf("%s: %s (%s) %s\n", a, rec.Fact.Name, rec.Id, rec.Published), nil
}

// Inspect renders the cache and the last cycle as text
func Inspect(s *state.State) string {
	y := Get[*Syncer](s)
	sb := strings.Builder{}

	sb.WriteString(fmt.Sprintf("Root: %s\n", s.Root))
	if y.Cycles == 0 {
		sb.WriteString("Last Cycle: never\n")
	} else {
		sb.WriteString(fmt.Sprintf("Last Cycle: #%d %s ago, %d reachable, %d live links, %d retracted, %d retract failures\n",
			y.Cycles, time.Since(y.LastCycle).Round(time.Millisecond), len(y.LastResult.Distance), len(y.LastResult.Links),
			y.LastStats.NodesRetracted+y.LastStats.LinksRetracted, y.LastStats.NodesFailed+y.LastStats.LinksFailed))
	}

	sb.WriteString("\nNodes:\n")
	nodes := y.Cache.Nodes()
	if len(nodes) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, n := range nodes {
		dist := "unreachable"
		if d, ok := y.LastResult.Distance[state.RouterId(n.Id)]; ok && n.Id <= state.NodeId(^uint32(0)) {
			dist = fmt.Sprintf("m=%d", d)
		}
		sb.WriteString(fmt.Sprintf(" - %s %s: %s, %s\n", n.Id, n.Fact.Name, n.Published, dist))
	}

	sb.WriteString("\nLinks:\n")
	links := y.Cache.Links()
	if len(links) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, l := range links {
		sb.WriteString(fmt.Sprintf(" - %s %s <-> %s: %s, metric %d\n", l.Key, l.Fact.NameA, l.Fact.NameB, l.Published, l.Fact.Metric))
	}
	return sb.String()
}

// FetchInspect reads /inspect from a running daemon
func FetchInspect(ctx context.Context, addr, query string) (string, error) {
	target := url.URL{Scheme: "http", Host: addr, Path: "/inspect"}
	if query != "" {
		target.RawQuery = url.Values{"addr": {query}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %s", res.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
