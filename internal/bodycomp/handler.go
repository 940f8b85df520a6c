package bodycomp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/2beens/bodytrend/internal/auth"
	"github.com/2beens/bodytrend/internal/bodycomp/calc"
	"github.com/2beens/bodytrend/internal/telemetry/metrics"
	"github.com/2beens/bodytrend/internal/telemetry/tracing"
	"github.com/2beens/bodytrend/pkg"

	"github.com/coocood/freecache"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=bodycomp_test

const listCacheExpireSeconds = 60

type entriesService interface {
	Add(ctx context.Context, entry Entry) (*Entry, error)
	List(ctx context.Context, params ListParams) (_ []Entry, total int, err error)
	ListAll(ctx context.Context, userID string) ([]Entry, error)
	Subscribe(ctx context.Context, userID string) (<-chan []Entry, func())
}

type ListResponse struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
}

type Handler struct {
	service   entriesService
	listCache *freecache.Cache
	metrics   *metrics.Manager
}

func NewHandler(
	service entriesService,
	listCache *freecache.Cache,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		service:   service,
		listCache: listCache,
		metrics:   metricsManager,
	}
}

// HandleCalculate runs the calculation engine over the posted measurements
// without saving anything. Open to anonymous callers.
func (handler *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.bodycomp.calculate")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var input calc.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		log.Tracef("calculate, unmarshal json params: %s", err)
		http.Error(w, "calculate failed", http.StatusBadRequest)
		return
	}

	result, err := calc.Calculate(input)
	if err != nil {
		writeCalcError(w, err)
		return
	}

	handler.metrics.CounterCalculations.Inc()

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal calculation result: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.bodycomp.new")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	userID, ok := auth.UserFromContext(ctx)
	if !ok {
		http.Error(w, "no user", http.StatusUnauthorized)
		return
	}

	var entry Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		log.Tracef("new entry, unmarshal json params: %s", err)
		http.Error(w, "add entry failed", http.StatusBadRequest)
		return
	}

	if entry.Date == "" {
		http.Error(w, "error, entry date empty", http.StatusBadRequest)
		return
	}

	entry.UserID = userID

	addedEntry, err := handler.service.Add(ctx, entry)
	if err != nil {
		if errors.Is(err, calc.ErrInvalidMeasurement) || errors.Is(err, calc.ErrBodyFatLogDomain) {
			writeCalcError(w, err)
			return
		}
		log.Errorf("failed to add new entry for %s: %s", userID, err)
		http.Error(w, "error, failed to add new entry", http.StatusInternalServerError)
		return
	}

	handler.listCache.Clear()

	addedEntryJson, err := json.Marshal(addedEntry)
	if err != nil {
		log.Errorf("failed to marshal new entry: %s", err)
		http.Error(w, "error, failed to add new entry", http.StatusInternalServerError)
		return
	}

	log.Debugf("new entry added: %s", addedEntryJson)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedEntryJson, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.bodycomp.list")
	defer span.End()

	userID, ok := auth.UserFromContext(ctx)
	if !ok {
		http.Error(w, "no user", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		log.Tracef("handle list entries, from <page> param: %s", err)
		http.Error(w, "parse form error, parameter <page>", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		log.Tracef("handle list entries, from <size> param: %s", err)
		http.Error(w, "parse form error, parameter <size>", http.StatusBadRequest)
		return
	}

	if page < 1 {
		http.Error(w, "invalid page (has to be non-zero value)", http.StatusBadRequest)
		return
	}
	if size < 1 {
		http.Error(w, "invalid size (has to be non-zero value)", http.StatusBadRequest)
		return
	}

	cacheKey := []byte(fmt.Sprintf("entries::%s::%d::%d", userID, page, size))
	if cached, err := handler.listCache.Get(cacheKey); err == nil {
		pkg.WriteResponseBytes(w, pkg.ContentType.JSON, cached, http.StatusOK)
		return
	}

	entries, total, err := handler.service.List(ctx, ListParams{
		UserID: userID,
		Page:   page,
		Size:   size,
	})
	if err != nil {
		log.Errorf("list entries error: %s", err)
		http.Error(w, "failed to get entries", http.StatusInternalServerError)
		return
	}

	listResponseJson, err := json.Marshal(ListResponse{
		Entries: entries,
		Total:   total,
	})
	if err != nil {
		log.Errorf("marshal entries error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := handler.listCache.Set(cacheKey, listResponseJson, listCacheExpireSeconds); err != nil {
		log.Warnf("failed to cache entries list response: %s", err)
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listResponseJson, http.StatusOK)
}

// HandleSubscribe streams history snapshots to the client over SSE. One
// snapshot is sent right away, then one after every newly saved entry.
func (handler *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.bodycomp.subscribe")
	defer span.End()

	userID, ok := auth.UserFromContext(ctx)
	if !ok {
		http.Error(w, "no user", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapshots, cancel := handler.service.Subscribe(ctx, userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debugf("entries subscriber connected: %s", userID)

	for {
		select {
		case <-ctx.Done():
			log.Debugf("entries subscriber gone: %s", userID)
			return
		case entries, open := <-snapshots:
			if !open {
				return
			}
			entriesJson, err := json.Marshal(entries)
			if err != nil {
				log.Errorf("subscribe, marshal entries snapshot: %s", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", entriesJson); err != nil {
				log.Tracef("subscribe, write snapshot: %s", err)
				return
			}
			flusher.Flush()
		}
	}
}

// HandleExport sends the complete history of the user as a CSV download.
// The optional "units" query param converts all values to the requested
// unit system, regardless of the system each entry was saved in.
func (handler *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.bodycomp.export")
	defer span.End()

	userID, ok := auth.UserFromContext(ctx)
	if !ok {
		http.Error(w, "no user", http.StatusUnauthorized)
		return
	}

	entries, err := handler.service.ListAll(ctx, userID)
	if err != nil {
		log.Errorf("export entries for %s: %s", userID, err)
		http.Error(w, "failed to get entries", http.StatusInternalServerError)
		return
	}

	units := calc.Imperial
	if unitsParam := r.URL.Query().Get("units"); unitsParam != "" {
		units = calc.UnitSystem(unitsParam)
		if !units.Valid() {
			http.Error(w, "invalid units param", http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", pkg.ContentType.CSV)
	w.Header().Set("Content-Disposition", `attachment; filename="bodytrend-entries.csv"`)
	if err := WriteEntriesCSV(w, entries, units); err != nil {
		log.Errorf("export entries for %s, write csv: %s", userID, err)
		return
	}

	handler.metrics.CounterCsvExports.Inc()
}

func writeCalcError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calc.ErrBodyFatLogDomain):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, calc.ErrInvalidMeasurement):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "calculation failed", http.StatusBadRequest)
	}
}
