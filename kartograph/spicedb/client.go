package spicedb

import (
	"context"
	"fmt"
	"io"
	"strings"

	v1 "github.com/authzed/authzed-go/proto/authzed/api/v1"
	"github.com/authzed/authzed-go/v1"
	"github.com/authzed/grpcutil"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/circuitbreaker"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/internal/nilcheck"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/telemetry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Applier applies relationship operations to a permission store. Client
// satisfies it; projectors depend on this interface so tests can substitute
// a recorder.
type Applier interface {
	Apply(ctx context.Context, op RelationshipOperation) error
}

// PermissionsClient is the slice of the authzed permissions service the
// client drives. *authzed.Client satisfies it.
type PermissionsClient interface {
	WriteRelationships(ctx context.Context, in *v1.WriteRelationshipsRequest, opts ...grpc.CallOption) (*v1.WriteRelationshipsResponse, error)
	DeleteRelationships(ctx context.Context, in *v1.DeleteRelationshipsRequest, opts ...grpc.CallOption) (*v1.DeleteRelationshipsResponse, error)
	CheckPermission(ctx context.Context, in *v1.CheckPermissionRequest, opts ...grpc.CallOption) (*v1.CheckPermissionResponse, error)
}

// ClientConfig carries the connection settings for a SpiceDB endpoint.
type ClientConfig struct {
	// Endpoint is the host:port of the SpiceDB gRPC API.
	Endpoint string
	// BearerToken is the preshared key. Required with TLS, optional when
	// Insecure is set (local development against spicedb serve-testing).
	BearerToken string
	// Insecure dials without TLS.
	Insecure bool
	// Logger receives connection and apply failures. Defaults to a nop logger.
	Logger log.Logger
}

// ClientOption customizes a Client beyond its config.
type ClientOption func(*Client)

// WithPermissionsClient injects a prebuilt permissions client and skips
// dialing. Intended for tests.
func WithPermissionsClient(permissions PermissionsClient) ClientOption {
	return func(client *Client) {
		if !nilcheck.Interface(permissions) {
			client.permissions = permissions
		}
	}
}

// WithBreaker wraps every SpiceDB call in the given circuit breaker. A nil
// breaker leaves calls unwrapped.
func WithBreaker(breaker *circuitbreaker.Breaker) ClientOption {
	return func(client *Client) {
		client.breaker = breaker
	}
}

// Client applies relationship operations and answers permission checks over
// the authzed v1 API.
type Client struct {
	permissions PermissionsClient
	breaker     *circuitbreaker.Breaker
	logger      log.Logger
	closer      io.Closer
}

var _ Applier = (*Client)(nil)

// NewClient dials the configured SpiceDB endpoint. When WithPermissionsClient
// injects a client the endpoint and token are ignored and the caller keeps
// ownership of the connection.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	client := &Client{logger: log.NewNop()}

	if !nilcheck.Interface(cfg.Logger) {
		client.logger = cfg.Logger
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.permissions != nil {
		return client, nil
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}

	dialOpts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}

	authzedClient, err := authzed.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialing spicedb at %s: %w", endpoint, err)
	}

	client.permissions = authzedClient

	if closer, ok := any(authzedClient).(io.Closer); ok {
		client.closer = closer
	}

	return client, nil
}

func dialOptions(cfg ClientConfig) ([]grpc.DialOption, error) {
	token := strings.TrimSpace(cfg.BearerToken)

	if cfg.Insecure {
		dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}

		if token != "" {
			dialOpts = append(dialOpts, grpcutil.WithInsecureBearerToken(token))
		}

		return dialOpts, nil
	}

	if token == "" {
		return nil, ErrBearerTokenRequired
	}

	systemCerts, err := grpcutil.WithSystemCerts(grpcutil.VerifyCA)
	if err != nil {
		return nil, fmt.Errorf("loading system certificates: %w", err)
	}

	return []grpc.DialOption{systemCerts, grpcutil.WithBearerToken(token)}, nil
}

// Apply validates the operation and sends it to SpiceDB. Writes touch, so a
// repeated write converges; deletes filter, so a repeated delete matches
// nothing and succeeds. Both make redelivered outbox entries safe.
func (client *Client) Apply(ctx context.Context, op RelationshipOperation) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if !client.initialized() {
		return ErrClientNotInitialized
	}

	if err := op.Validate(); err != nil {
		return err
	}

	switch op.Kind {
	case OpWriteRelationship:
		return client.writeRelationship(ctx, op)
	case OpDeleteRelationship:
		return client.deleteRelationships(ctx, op)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperationKind, string(op.Kind))
	}
}

func (client *Client) writeRelationship(ctx context.Context, op RelationshipOperation) error {
	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "spicedb.write_relationship")
	defer span.End()

	request := &v1.WriteRelationshipsRequest{
		Updates: []*v1.RelationshipUpdate{
			{
				Operation: v1.RelationshipUpdate_OPERATION_TOUCH,
				Relationship: &v1.Relationship{
					Resource: &v1.ObjectReference{
						ObjectType: op.Resource.Type,
						ObjectId:   op.Resource.ID,
					},
					Relation: op.Relation,
					Subject: &v1.SubjectReference{
						Object: &v1.ObjectReference{
							ObjectType: op.Subject.Type,
							ObjectId:   op.Subject.ID,
						},
					},
				},
			},
		},
	}

	err := client.breaker.Execute(func() error {
		_, callErr := client.permissions.WriteRelationships(ctx, request)

		return callErr
	})
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to write relationship", err)

		client.logger.Log(ctx, log.LevelError, "spicedb write failed",
			log.String("operation", op.String()),
			log.Err(err))

		return fmt.Errorf("writing relationship %s: %w", op, err)
	}

	return nil
}

func (client *Client) deleteRelationships(ctx context.Context, op RelationshipOperation) error {
	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "spicedb.delete_relationships")
	defer span.End()

	filter := &v1.RelationshipFilter{
		ResourceType:       op.Resource.Type,
		OptionalResourceId: op.Resource.ID,
		OptionalRelation:   op.Relation,
	}

	if op.Subject != (ObjectRef{}) {
		filter.OptionalSubjectFilter = &v1.SubjectFilter{
			SubjectType:       op.Subject.Type,
			OptionalSubjectId: op.Subject.ID,
		}
	}

	request := &v1.DeleteRelationshipsRequest{RelationshipFilter: filter}

	err := client.breaker.Execute(func() error {
		_, callErr := client.permissions.DeleteRelationships(ctx, request)

		return callErr
	})
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to delete relationships", err)

		client.logger.Log(ctx, log.LevelError, "spicedb delete failed",
			log.String("operation", op.String()),
			log.Err(err))

		return fmt.Errorf("deleting relationships %s: %w", op, err)
	}

	return nil
}

// CheckPermission reports whether subject has permission on resource at the
// store's default consistency.
func (client *Client) CheckPermission(ctx context.Context, resource ObjectRef, permission string, subject ObjectRef) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !client.initialized() {
		return false, ErrClientNotInitialized
	}

	if err := resource.validate(); err != nil {
		return false, fmt.Errorf("resource: %w", err)
	}

	if permission == "" {
		return false, ErrPermissionRequired
	}

	if !relationPattern.MatchString(permission) {
		return false, fmt.Errorf("%w: %q", ErrInvalidRelation, permission)
	}

	if err := subject.validate(); err != nil {
		return false, fmt.Errorf("subject: %w", err)
	}

	_, tracer, _ := kartograph.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "spicedb.check_permission")
	defer span.End()

	request := &v1.CheckPermissionRequest{
		Resource: &v1.ObjectReference{
			ObjectType: resource.Type,
			ObjectId:   resource.ID,
		},
		Permission: permission,
		Subject: &v1.SubjectReference{
			Object: &v1.ObjectReference{
				ObjectType: subject.Type,
				ObjectId:   subject.ID,
			},
		},
	}

	var response *v1.CheckPermissionResponse

	err := client.breaker.Execute(func() error {
		var callErr error
		response, callErr = client.permissions.CheckPermission(ctx, request)

		return callErr
	})
	if err != nil {
		telemetry.HandleSpanError(&span, "failed to check permission", err)

		client.logger.Log(ctx, log.LevelError, "spicedb check failed",
			log.String("resource", resource.String()),
			log.String("permission", permission),
			log.String("subject", subject.String()),
			log.Err(err))

		return false, fmt.Errorf("checking permission %s on %s: %w", permission, resource, err)
	}

	return response.GetPermissionship() == v1.CheckPermissionResponse_PERMISSIONSHIP_HAS_PERMISSION, nil
}

// Close releases the underlying connection when the client dialed it. Clients
// built around an injected permissions client close nothing.
func (client *Client) Close() error {
	if client == nil || client.closer == nil {
		return nil
	}

	return client.closer.Close()
}

func (client *Client) initialized() bool {
	return client != nil && client.permissions != nil
}
