package wire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/yzkee/super-productivity-sub001/internal/clientsync"
	"github.com/yzkee/super-productivity-sub001/internal/config"
	"github.com/yzkee/super-productivity-sub001/internal/op"
	"github.com/yzkee/super-productivity-sub001/internal/syncerr"
	"github.com/yzkee/super-productivity-sub001/internal/vclock"
)

// RESTClient implements clientsync.Transport against a Server Sync Service
// exposed by this package's Handler. Built on go-retryablehttp rather than
// a bare http.Client, since an upload timing out must leave the unsynced
// entries unsynced and eligible for the next cycle; upload is idempotent
// on op id, and the retry policy here is a belt-and-braces layer under
// that guarantee, not a substitute for it.
type RESTClient struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
	log     zerolog.Logger
}

var _ clientsync.Transport = (*RESTClient)(nil)

// NewRESTClient builds a RESTClient from a validated SyncConfig.
func NewRESTClient(cfg config.SyncConfig, log zerolog.Logger) *RESTClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = retryableLogAdapter{log}
	return &RESTClient{http: rc, baseURL: cfg.BaseURL, apiKey: cfg.APIKey, log: log}
}

// retryableLogAdapter routes go-retryablehttp's built-in retry/backoff
// logging through zerolog instead of its default stdlib *log.Logger.
type retryableLogAdapter struct {
	log zerolog.Logger
}

func (a retryableLogAdapter) Printf(format string, args ...any) {
	a.log.Debug().Msgf(format, args...)
}

func (c *RESTClient) UploadOps(ctx context.Context, userId string, clientId vclock.ClientId, ops []op.Operation) ([]clientsync.UploadVerdict, error) {
	wireOps := make([]op.WireOperation, len(ops))
	for i, o := range ops {
		wireOps[i] = op.EncodeWire(o)
	}
	body, err := json.Marshal(UploadRequest{Version: ProtocolVersion, ClientId: clientId, Ops: wireOps})
	if err != nil {
		return nil, syncerr.Wire.Wrap(err)
	}

	var resp UploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sync/upload", body, &resp); err != nil {
		return nil, err
	}

	out := make([]clientsync.UploadVerdict, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = clientsync.UploadVerdict{OpId: r.OpId, Accepted: r.Accepted}
		if len(r.ExistingClock) > 0 {
			// An absent clock stays nil so the client marks the op rejected
			// instead of synthesizing a recovery op.
			out[i].ExistingClock = vcFromWire(r.ExistingClock)
		}
	}
	return out, nil
}

func (c *RESTClient) GetOpsSince(ctx context.Context, userId string, sinceSeq uint64, limit int) (clientsync.DownloadResult, error) {
	path := fmt.Sprintf("/sync/download?sinceSeq=%s&limit=%s", strconv.FormatUint(sinceSeq, 10), strconv.Itoa(limit))

	var resp DownloadResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return clientsync.DownloadResult{}, err
	}

	ops := make([]op.Operation, len(resp.Ops))
	for i, dto := range resp.Ops {
		ops[i] = storedFromDTO(dto).Operation
	}
	return clientsync.DownloadResult{Ops: ops, MaxServerSeq: resp.MaxServerSeq}, nil
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return syncerr.Wire.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("sync request unavailable")
		return syncerr.NewWireError(syncerr.CodeUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Code == "" {
			errResp.Code = syncerr.CodeUnavailable
		}
		return syncerr.NewWireError(errResp.Code, errResp.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerr.Wire.Wrap(err)
	}
	return nil
}
