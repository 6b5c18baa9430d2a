package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/internal/relayer"
	"github.com/scalarorg/ismp-relayer/pkg/db"
	"github.com/scalarorg/ismp-relayer/pkg/db/models"
	"github.com/scalarorg/ismp-relayer/pkg/types"
)

type TrackRequest struct {
	Request types.PostRequest `json:"request"`

	// Source block the request was dispatched in, the latest block when zero.
	Height uint64 `json:"height"`
}

type StatusRequest struct {
	Request types.PostRequest `json:"request"`
}

type RequestView struct {
	Commitment      string        `json:"commitment"`
	Source          string        `json:"source"`
	Dest            string        `json:"dest"`
	Nonce           uint64        `json:"nonce"`
	Status          string        `json:"status"`
	StreamState     string        `json:"stream_state"`
	StreamHeight    uint64        `json:"stream_height"`
	Finished        bool          `json:"finished"`
	TxHash          string        `json:"tx_hash,omitempty"`
	Calldata        hexutil.Bytes `json:"calldata,omitempty"`
	TimeoutState    string        `json:"timeout_state,omitempty"`
	TimeoutStatus   string        `json:"timeout_status,omitempty"`
	TimeoutCalldata hexutil.Bytes `json:"timeout_calldata,omitempty"`
	LastError       *string       `json:"last_error,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func newRequestView(record *models.TrackedRequest) RequestView {
	return RequestView{
		Commitment:      record.Commitment,
		Source:          record.Source,
		Dest:            record.Dest,
		Nonce:           record.Nonce,
		Status:          record.Status,
		StreamState:     record.StreamState,
		StreamHeight:    record.StreamHeight,
		Finished:        record.Finished,
		TxHash:          record.TxHash,
		Calldata:        record.Calldata,
		TimeoutState:    record.TimeoutState,
		TimeoutStatus:   record.TimeoutStatus,
		TimeoutCalldata: record.TimeoutCalldata,
		LastError:       record.LastError,
		UpdatedAt:       record.UpdatedAt,
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) trackRequest(c echo.Context) error {
	var req TrackRequest
	if err := bindAndValidate(c, &req, &req.Request); err != nil {
		return err
	}
	record, err := s.service.Track(c.Request().Context(), req.Request, req.Height)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusAccepted, newRequestView(record))
}

func (s *Server) queryStatus(c echo.Context) error {
	var req StatusRequest
	if err := bindAndValidate(c, &req, &req.Request); err != nil {
		return err
	}
	status, err := s.service.QueryStatus(c.Request().Context(), req.Request)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) getRequest(c echo.Context) error {
	commitment, err := parseCommitment(c.Param("commitment"))
	if err != nil {
		return err
	}
	record, err := s.service.FindTrackedRequest(c.Request().Context(), commitment)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, newRequestView(record))
}

// streamEvents writes the bus envelopes of a request as server sent events until the client leaves.
func (s *Server) streamEvents(c echo.Context) error {
	commitment, err := parseCommitment(c.Param("commitment"))
	if err != nil {
		return err
	}
	id, envelopes := s.eventBus.Subscribe(commitment)
	defer s.eventBus.Unsubscribe(id)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case envelope, ok := <-envelopes:
			if !ok {
				return nil
			}
			data, err := json.Marshal(envelope)
			if err != nil {
				log.Warn().Err(err).Msg("[Api] [streamEvents] cannot marshal envelope")
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", eventName(envelope), data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func eventName(envelope *types.StatusEnvelope) string {
	if envelope.Timeout != nil {
		return "timeout"
	}
	return "status"
}

func bindAndValidate(c echo.Context, req interface{}, post *types.PostRequest) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	if err := post.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

func parseCommitment(value string) (common.Hash, error) {
	bytes, err := hexutil.Decode(value)
	if err != nil || len(bytes) != common.HashLength {
		return common.Hash{}, echo.NewHTTPError(http.StatusBadRequest, "commitment must be a 0x prefixed 32 bytes hex string")
	}
	return common.BytesToHash(bytes), nil
}

func toHTTPError(err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, db.ErrRequestNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, types.ErrUnknownClient), errors.As(err, &validationErrors):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, relayer.ErrServiceNotStarted):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error()).SetInternal(err)
	case errors.Is(err, types.ErrRpcFailure):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	default:
		log.Error().Err(err).Msg("[Api] request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
