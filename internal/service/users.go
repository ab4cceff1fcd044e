package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/domain/credential"
	"github.com/target/ldap-user-collection/internal/domain/model"
	apperrors "github.com/target/ldap-user-collection/internal/errors"
	"github.com/target/ldap-user-collection/internal/observability/metrics"
	"github.com/target/ldap-user-collection/internal/ports"
)

const (
	msgBadCredentials = "bad credentials"
	msgUsernameInUse  = "is already in use"
	msgRequired       = "is required"
)

// Request is one call against the user collection.
type Request struct {
	Method string
	// URL is the path below the collection, e.g. "", "/me", "/<id>".
	URL     string
	Query   Query
	Body    map[string]any
	Session ports.SessionManager
	// User is the session owner, attached by HandleSession.
	User *model.User
	// Root marks an administrative caller.
	Root bool
	// Internal marks an in-process trusted caller.
	Internal bool
}

// Query carries the read parameters and the resolved target id.
type Query struct {
	ID     string
	Fields model.Fields
	Filter model.UserFilter
	Sort   []model.SortKey
	Limit  int
	Skip   int
}

// Response is the outcome of a handled request. Body is nil for empty responses.
type Response struct {
	Status int
	Body   any
}

// CountResult is the body of GET /count.
type CountResult struct {
	Count int `json:"count"`
}

// IndexResult is the body of GET /index-of/<id>.
type IndexResult struct {
	Index int `json:"index"`
}

// LoginResult is the body of POST /login. The session id is only sent as the cookie.
type LoginResult struct {
	Path string `json:"path"`
	UID  string `json:"uid"`
}

// loginRecorder receives login outcomes; *metrics.AuthRecorder implements it.
type loginRecorder interface {
	RecordLogin(in metrics.LoginMetric)
}

// UserCollectionOptions groups dependencies for UserCollection.
type UserCollectionOptions struct {
	Store     ports.UserStore
	Directory ports.Directory
	Config    UserCollectionConfig
	Metrics   loginRecorder
	Logger    *slog.Logger
}

// UserCollectionConfig holds the behavior switches of the collection.
type UserCollectionConfig struct {
	// Path is the resource path sessions are scoped to.
	Path string
	// LocalHashing stores salted credentials so repeat logins skip the directory.
	LocalHashing bool
}

// UserCollection serves the user resource: login, logout, self lookup and CRUD
// with secret redaction and identity-field protection.
type UserCollection struct {
	store     ports.UserStore
	directory ports.Directory
	hasher    credential.Hasher
	validate  *validator.Validate
	cfg       UserCollectionConfig
	metrics   loginRecorder
	logger    *slog.Logger
}

// NewUserCollection constructs a new UserCollection.
func NewUserCollection(opts UserCollectionOptions) *UserCollection {
	cfg := opts.Config
	if cfg.Path == "" {
		cfg.Path = "/users"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserCollection{
		store:     opts.Store,
		directory: opts.Directory,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "user_collection"),
	}
}

// Path returns the resource path the collection is mounted at.
func (c *UserCollection) Path() string { return c.cfg.Path }

// HandleSession attaches the session owner to the request.
// Sessions scoped to another path or without a uid are ignored, as are uids that no longer resolve.
func (c *UserCollection) HandleSession(ctx context.Context, req *Request) error {
	if req.Session == nil {
		return nil
	}
	sess := req.Session.Current()
	if sess == nil || !sess.Authenticated(c.cfg.Path) {
		return nil
	}

	user, err := c.store.Get(ctx, sess.UID, model.Fields{model.SecretField: 0})
	if err != nil {
		if apperrors.IsNotFound(err) {
			c.logger.DebugContext(ctx, "session user no longer exists", "uid", sess.UID)
			return nil
		}
		return fmt.Errorf("load session user: %w", err)
	}
	req.User = user.WithoutSecret()
	return nil
}

// Handle dispatches a request by method and URL.
func (c *UserCollection) Handle(ctx context.Context, req *Request) (*Response, error) {
	if req.User == nil {
		if err := c.HandleSession(ctx, req); err != nil {
			return nil, err
		}
	}

	// HEAD is answered like GET; the transport drops the body.
	method := req.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}

	if method == http.MethodGet {
		switch {
		case req.URL == "/count":
			return c.count(ctx, req)
		case strings.HasPrefix(req.URL, "/index-of"):
			return c.indexOf(ctx, req)
		}
	}

	if req.URL == "/logout" {
		return c.logout(ctx, req)
	}

	if req.Query.ID == "" {
		req.Query.ID = c.resolveID(req)
	}
	req.Query.Fields = RedactFields(req.Query.Fields)

	switch method {
	case http.MethodGet:
		if req.URL == "/me" {
			return c.me(req)
		}
		return c.read(ctx, req)
	case http.MethodPost:
		if req.URL == "/login" {
			return c.login(ctx, req)
		}
		return c.save(ctx, req)
	case http.MethodPut:
		return c.save(ctx, req)
	case http.MethodDelete:
		return c.remove(ctx, req)
	default:
		return nil, apperrors.MethodNotAllowedf("method %s is not allowed", req.Method)
	}
}

// resolveID picks the target id from the URL path, then the body.
func (c *UserCollection) resolveID(req *Request) string {
	if id := firstSegment(req.URL); id != "" {
		return id
	}
	if id, ok := req.Body[model.IDField].(string); ok {
		return id
	}
	return ""
}

func firstSegment(url string) string {
	trimmed := strings.TrimPrefix(url, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}

func (c *UserCollection) listQuery(req *Request) model.UserQuery {
	return model.UserQuery{
		Filter: req.Query.Filter,
		Fields: req.Query.Fields,
		Sort:   req.Query.Sort,
		Limit:  req.Query.Limit,
		Skip:   req.Query.Skip,
	}
}

func (c *UserCollection) count(ctx context.Context, req *Request) (*Response, error) {
	n, err := c.store.Count(ctx, req.Query.Filter)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return &Response{Status: http.StatusOK, Body: CountResult{Count: n}}, nil
}

func (c *UserCollection) indexOf(ctx context.Context, req *Request) (*Response, error) {
	id := firstSegment(strings.TrimPrefix(req.URL, "/index-of"))
	if id == "" {
		id = req.Query.ID
	}
	if id == "" {
		return nil, apperrors.ValidationField(model.IDField, msgRequired)
	}
	idx, err := c.store.IndexOf(ctx, id, c.listQuery(req))
	if err != nil {
		return nil, fmt.Errorf("index of user: %w", err)
	}
	return &Response{Status: http.StatusOK, Body: IndexResult{Index: idx}}, nil
}

func (c *UserCollection) logout(ctx context.Context, req *Request) (*Response, error) {
	if req.Session != nil {
		if err := req.Session.Remove(ctx); err != nil {
			return nil, err
		}
	}
	return &Response{Status: http.StatusOK}, nil
}

func (c *UserCollection) me(req *Request) (*Response, error) {
	if req.User == nil {
		return &Response{Status: http.StatusNoContent}, nil
	}
	return &Response{Status: http.StatusOK, Body: redact(req.User, nil)}, nil
}

func (c *UserCollection) read(ctx context.Context, req *Request) (*Response, error) {
	if req.Query.ID != "" {
		user, err := c.store.Get(ctx, req.Query.ID, req.Query.Fields)
		if err != nil {
			return nil, fmt.Errorf("get user: %w", err)
		}
		return &Response{Status: http.StatusOK, Body: redact(user, req.Query.Fields)}, nil
	}

	users, err := c.store.Find(ctx, c.listQuery(req))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return &Response{Status: http.StatusOK, Body: redactAll(users, req.Query.Fields)}, nil
}

func (c *UserCollection) remove(ctx context.Context, req *Request) (*Response, error) {
	if req.Query.ID == "" {
		return nil, apperrors.ValidationField(model.IDField, msgRequired)
	}
	if err := c.store.Remove(ctx, req.Query.ID); err != nil {
		return nil, fmt.Errorf("remove user: %w", err)
	}
	return &Response{Status: http.StatusNoContent}, nil
}

func badCredentials() error {
	return apperrors.Unauthorized(msgBadCredentials)
}

// login verifies credentials locally when possible, otherwise against the directory,
// provisioning a record on first directory success.
func (c *UserCollection) login(ctx context.Context, req *Request) (*Response, error) {
	started := time.Now()
	metric := metrics.LoginMetric{}
	defer func() {
		if metric.Outcome == "" {
			return
		}
		metric.Duration = time.Since(started)
		if c.metrics != nil {
			c.metrics.RecordLogin(metric)
		}
	}()

	creds, ok := c.credentials(req.Body)
	if !ok {
		metric.Outcome = metrics.OutcomeRejected
		return nil, badCredentials()
	}
	c.logger.DebugContext(ctx, "login attempt", "username", creds.Username)

	user, err := c.store.FindFirst(ctx, model.UserFilter{Username: &creds.Username})
	if err != nil {
		metric.Outcome, metric.Err = metrics.OutcomeError, err
		return nil, fmt.Errorf("find user: %w", err)
	}

	if user != nil && c.cfg.LocalHashing && user.HasPassword() {
		if !c.hasher.Verify(*user.Password, creds.Password) {
			metric.Outcome = metrics.OutcomeRejected
			return nil, badCredentials()
		}
		resp, sessErr := c.startSession(ctx, req, user.ID)
		metric.Outcome, metric.Err = outcomeFor(metrics.OutcomeLocalSuccess, sessErr), sessErr
		return resp, sessErr
	}

	result := c.directory.Authenticate(ctx, creds.Username, creds.Password)
	metric.Directory = result.String()
	if !result.Accepted() {
		metric.Outcome = metrics.OutcomeRejected
		return nil, badCredentials()
	}
	if result == domainauth.DirectoryBoundSearchFailed {
		c.logger.WarnContext(ctx, "directory bind succeeded but entry lookup failed; accepting bind", "username", creds.Username)
	}

	if user == nil {
		created, provisionErr := c.provision(ctx, creds)
		if provisionErr != nil {
			metric.Outcome, metric.Err = metrics.OutcomeError, provisionErr
			return nil, provisionErr
		}
		resp, sessErr := c.startSession(ctx, req, created.ID)
		metric.Outcome, metric.Err = outcomeFor(metrics.OutcomeProvisioned, sessErr), sessErr
		return resp, sessErr
	}

	if c.cfg.LocalHashing {
		if cacheErr := c.storeCredential(ctx, user.ID, creds.Password); cacheErr != nil {
			metric.Outcome, metric.Err = metrics.OutcomeError, cacheErr
			return nil, cacheErr
		}
	}
	resp, sessErr := c.startSession(ctx, req, user.ID)
	metric.Outcome, metric.Err = outcomeFor(metrics.OutcomeDirectorySuccess, sessErr), sessErr
	return resp, sessErr
}

func outcomeFor(success metrics.LoginOutcome, err error) metrics.LoginOutcome {
	if err != nil {
		return metrics.OutcomeError
	}
	return success
}

// credentials decodes and validates the login body.
func (c *UserCollection) credentials(body map[string]any) (model.Credentials, bool) {
	username, _ := body[model.UsernameField].(string)
	password, _ := body[model.SecretField].(string)
	creds := model.Credentials{Username: username, Password: password}
	if err := c.validate.Struct(creds); err != nil {
		return model.Credentials{}, false
	}
	return creds, true
}

// provision creates the record for a first-time directory user.
func (c *UserCollection) provision(ctx context.Context, creds model.Credentials) (*model.User, error) {
	username := creds.Username
	in := model.UserInput{Username: &username}
	if c.cfg.LocalHashing {
		encoded, err := c.hasher.Encode(creds.Password)
		if err != nil {
			return nil, fmt.Errorf("encode password: %w", err)
		}
		in.Password = &encoded
	}

	created, err := c.store.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("provision user: %w", usernameConflict(err))
	}
	c.logger.InfoContext(ctx, "provisioned user from directory", "username", username, "id", created.ID)
	return created, nil
}

// storeCredential caches a directory-verified password on an existing record.
func (c *UserCollection) storeCredential(ctx context.Context, id, password string) error {
	encoded, err := c.hasher.Encode(password)
	if err != nil {
		return fmt.Errorf("encode password: %w", err)
	}
	if _, err := c.store.Update(ctx, id, model.UserInput{Password: &encoded}); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

func (c *UserCollection) startSession(ctx context.Context, req *Request, uid string) (*Response, error) {
	if req.Session == nil {
		return nil, apperrors.Internal("no session available for login")
	}
	if err := req.Session.Regenerate(ctx); err != nil {
		return nil, err
	}
	req.Session.Set(c.cfg.Path, uid)
	if err := req.Session.Save(ctx); err != nil {
		return nil, err
	}
	cur := req.Session.Current()
	return &Response{Status: http.StatusOK, Body: LoginResult{Path: cur.Path, UID: cur.UID}}, nil
}

// save creates or updates a record.
func (c *UserCollection) save(ctx context.Context, req *Request) (*Response, error) {
	body := maps.Clone(req.Body)
	if body == nil {
		body = map[string]any{}
	}

	// The plaintext never travels past this point, even when the write is later rejected.
	if err := c.prepareSecret(body); err != nil {
		return nil, err
	}

	id := req.Query.ID
	if id != "" && len(body) > 0 && !c.isSelf(req, body) && !req.Root && !req.Internal {
		delete(body, model.UsernameField)
		delete(body, model.SecretField)
	}

	in, err := model.ParseUserInput(body)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var saved *model.User
	if id != "" {
		saved, err = c.store.Update(ctx, id, in)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", usernameConflict(err))
		}
	} else {
		saved, err = c.create(ctx, in)
		if err != nil {
			return nil, err
		}
	}
	return &Response{Status: http.StatusOK, Body: redact(saved, req.Query.Fields)}, nil
}

// prepareSecret hashes (local mode) or drops (directory-only mode) a password in the body.
func (c *UserCollection) prepareSecret(body map[string]any) error {
	raw, ok := body[model.SecretField]
	if !ok {
		return nil
	}
	if !c.cfg.LocalHashing {
		delete(body, model.SecretField)
		return nil
	}
	plaintext, isString := raw.(string)
	if !isString {
		delete(body, model.SecretField)
		return apperrors.ValidationField(model.SecretField, "must be a string")
	}
	if plaintext == "" {
		delete(body, model.SecretField)
		return nil
	}
	encoded, err := c.hasher.Encode(plaintext)
	if err != nil {
		delete(body, model.SecretField)
		return fmt.Errorf("encode password: %w", err)
	}
	body[model.SecretField] = encoded
	return nil
}

// isSelf reports whether the caller acts on their own record.
// A body that names an id is treated as self-consistent.
func (c *UserCollection) isSelf(req *Request, body map[string]any) bool {
	if req.User != nil && req.User.ID == req.Query.ID {
		return true
	}
	id, _ := body[model.IDField].(string)
	return id != ""
}

func (c *UserCollection) create(ctx context.Context, in model.UserInput) (*model.User, error) {
	missing := map[string]string{}
	if in.Username == nil || strings.TrimSpace(*in.Username) == "" {
		missing[model.UsernameField] = msgRequired
	}
	if c.cfg.LocalHashing && in.Password == nil {
		missing[model.SecretField] = msgRequired
	}
	if len(missing) > 0 {
		return nil, apperrors.ValidationFields("invalid user", missing)
	}

	existing, err := c.store.FindFirst(ctx, model.UserFilter{Username: in.Username})
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, usernameInUse(nil)
	}

	created, err := c.store.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", usernameConflict(err))
	}
	return created, nil
}

func usernameInUse(cause error) *apperrors.AppError {
	e := apperrors.ValidationField(model.UsernameField, msgUsernameInUse)
	e.Cause = cause
	return e
}

// usernameConflict turns a store-level uniqueness violation on username into the
// same validation error the pre-check reports.
func usernameConflict(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeConflict && appErr.Field == model.UsernameField {
		return usernameInUse(err)
	}
	return err
}
