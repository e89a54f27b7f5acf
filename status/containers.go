package status

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/PowerDNS/simpleblob"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/PowerDNS/pbz/config"
	"github.com/PowerDNS/pbz/container"
	"github.com/PowerDNS/pbz/jsonl"
	"github.com/PowerDNS/pbz/selector"
	"github.com/PowerDNS/pbz/storage"
	"github.com/PowerDNS/pbz/utils/climit"
)

// MaxConcurrentStreams limits how many containers are decoded at once
const MaxConcurrentStreams = 4

// ContainerHandler serves stored containers.
//
//	GET /containers/                      JSON list of names
//	GET /containers/{name}?x=&skip=&take= messages as JSON lines
type ContainerHandler struct {
	c     config.Config
	opts  []container.Option
	limit *climit.ConcurrencyLimit
}

// NewContainerHandler creates a ContainerHandler
func NewContainerHandler(c config.Config) *ContainerHandler {
	logger := logrus.WithField("handler", "containers")
	return &ContainerHandler{
		c:     c,
		opts:  append(c.ReaderOptions(), container.WithLogger(logger)),
		limit: climit.New("http_containers", MaxConcurrentStreams, logger),
	}
}

func (h *ContainerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := getStorage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	if h.c.Storage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.c.Storage.Timeout)
		defer cancel()
	}

	name := strings.TrimPrefix(r.URL.Path, "/containers/")
	if name == "" {
		list, err := storage.List(ctx, st, r.URL.Query().Get("prefix"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(lo.Map(list, func(b simpleblob.Blob, _ int) string {
			return b.Name
		}))
		return
	}
	if err := storage.CheckName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	opt := jsonl.Options{
		Pretty: q.Get("pretty") != "",
		Logger: logrus.WithField("container", name),
	}
	if opt.Selector, err = selector.Parse(q.Get("x")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if opt.Skip, err = intParam(q.Get("skip")); err != nil {
		http.Error(w, "skip: "+err.Error(), http.StatusBadRequest)
		return
	}
	if opt.Take, err = intParam(q.Get("take")); err != nil {
		http.Error(w, "take: "+err.Error(), http.StatusBadRequest)
		return
	}

	token, err := h.limit.Acquire(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer token.Release()

	cr, err := storage.Load(ctx, st, name, h.opts...)
	if err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, os.ErrNotExist) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	defer cr.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	res, err := jsonl.Dump(ctx, cr, w, opt)
	l := opt.Logger.WithFields(logrus.Fields{
		"messages":      res.Messages,
		"written":       res.Written,
		"decode_errors": res.DecodeErrors,
	})
	if err != nil {
		// Headers are gone already, the client sees a truncated stream
		l.WithError(err).Warn("Streaming container failed")
		return
	}
	l.Debug("Streamed container")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
