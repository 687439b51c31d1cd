package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"wschat/internal/auth"
	"wschat/internal/models"
	"wschat/internal/websocket"
	"wschat/pkg/logger"
)

const (
	ActionManageServer = "manageServer"
	// ServerName is the service name of responses produced by the registry.
	ServerName = "server"
)

// Authenticator checks manageServer credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (*models.User, error)
	GlobalRights(ctx context.Context, userID int) (models.GlobalRights, error)
}

// Registry owns the running services. It is driven by the connection
// scheduler and is not safe for concurrent use.
type Registry struct {
	factories map[string]Factory
	running   map[string]Service
	order     []string
	conns     map[string]Conn

	auth    Authenticator
	timeout time.Duration
}

func NewRegistry(factories map[string]Factory, authenticator Authenticator, timeout time.Duration) *Registry {
	return &Registry{
		factories: factories,
		running:   make(map[string]Service),
		conns:     make(map[string]Conn),
		auth:      authenticator,
		timeout:   timeout,
	}
}

// Enable starts the named services.
func (r *Registry) Enable(names ...string) error {
	for _, name := range names {
		if err := r.add(name); err != nil {
			return fmt.Errorf("enable %s: %w", name, err)
		}
	}
	return nil
}

// Running returns the running service names in start order.
func (r *Registry) Running() []string {
	return append([]string(nil), r.order...)
}

// Available returns every service name known to the binary.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) HandleFrame(conn *websocket.Connection, payload []byte) {
	r.conns[conn.ID()] = conn
	r.Dispatch(conn, payload)
}

func (r *Registry) HandleDisconnect(conn *websocket.Connection) {
	r.Disconnect(conn)
}

// Disconnect runs every running service's teardown for conn.
func (r *Registry) Disconnect(conn Conn) {
	delete(r.conns, conn.ID())
	for _, name := range r.order {
		r.running[name].Disconnect(conn)
	}
}

// Dispatch decodes payload and forwards it to every addressed service.
func (r *Registry) Dispatch(conn Conn, payload []byte) {
	r.conns[conn.ID()] = conn

	env, err := models.ParseEnvelope(payload)
	if err != nil {
		logger.Debug("Malformed message from %s: %v", conn.ID(), err)
		Send(conn, models.Response{
			Service: ServerName,
			Action:  "unknown",
			Success: false,
			Text:    "Malformed message",
		})
		return
	}

	if env.Action == ActionManageServer {
		r.manage(conn, env)
		return
	}

	if len(env.Service) == 0 {
		Fail(conn, ServerName, env.Action, fmt.Errorf("%w: a service is required", ErrValidation))
		return
	}

	delivered := false
	seen := make(map[string]bool, len(env.Service))
	for _, name := range env.Service {
		if seen[name] {
			continue
		}
		seen[name] = true
		if svc, ok := r.running[name]; ok {
			svc.Process(conn, env)
			delivered = true
		}
	}
	if !delivered {
		Fail(conn, ServerName, env.Action, ErrUnknownService)
	}
}

type manageRequest struct {
	Login         string          `json:"login"`
	Password      string          `json:"password"`
	AddService    *string         `json:"addService"`
	RemoveService *string         `json:"removeService"`
	ListServices  json.RawMessage `json:"listServices"`
}

func (m *manageRequest) wantsList() bool {
	switch string(m.ListServices) {
	case "", "null", "false":
		return false
	}
	return true
}

func (r *Registry) manage(conn Conn, env *models.Envelope) {
	var req manageRequest
	if err := env.Decode(&req); err != nil {
		Fail(conn, ServerName, env.Action, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}

	resp, err := r.executeManage(&req)
	if err != nil {
		Fail(conn, ServerName, env.Action, err)
		return
	}
	resp.Service = ServerName
	resp.Action = env.Action
	resp.Success = true
	Send(conn, resp)
}

func (r *Registry) executeManage(req *manageRequest) (models.Response, error) {
	if req.Login == "" || req.Password == "" {
		return models.Response{}, fmt.Errorf("%w: login and password are required", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	user, err := r.auth.Authenticate(ctx, req.Login, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return models.Response{}, ErrAuthenticationFailed
	}
	if err != nil {
		return models.Response{}, err
	}

	rights, err := r.auth.GlobalRights(ctx, user.ID)
	if err != nil {
		return models.Response{}, err
	}
	if !rights.WebSocket {
		return models.Response{}, ErrAuthorizationFailed
	}

	operations := 0
	if req.AddService != nil {
		operations++
	}
	if req.RemoveService != nil {
		operations++
	}
	if req.wantsList() {
		operations++
	}
	if operations != 1 {
		return models.Response{}, fmt.Errorf("%w: exactly one of addService, removeService or listServices is required", ErrValidation)
	}

	switch {
	case req.AddService != nil:
		if err := r.add(*req.AddService); err != nil {
			return models.Response{}, err
		}
		logger.Info("Service %s started by %s", *req.AddService, user.Login)
		return models.Response{Text: fmt.Sprintf("Service %s started", *req.AddService), Services: r.Running()}, nil

	case req.RemoveService != nil:
		if err := r.remove(*req.RemoveService); err != nil {
			return models.Response{}, err
		}
		logger.Info("Service %s stopped by %s", *req.RemoveService, user.Login)
		return models.Response{Text: fmt.Sprintf("Service %s stopped", *req.RemoveService), Services: r.Running()}, nil

	default:
		return models.Response{Text: "Running services", Services: r.Running()}, nil
	}
}

func (r *Registry) add(name string) error {
	if _, ok := r.running[name]; ok {
		return ErrAlreadyRunning
	}
	factory, ok := r.factories[name]
	if !ok {
		return ErrUnknownService
	}
	r.running[name] = factory()
	r.order = append(r.order, name)
	return nil
}

// remove stops a service after running its teardown for every known
// connection.
func (r *Registry) remove(name string) error {
	svc, ok := r.running[name]
	if !ok {
		return ErrNotRunning
	}
	for _, conn := range r.conns {
		svc.Disconnect(conn)
	}
	delete(r.running, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
