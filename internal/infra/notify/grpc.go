package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// notifyMethod is the front-end's delivery RPC. The payload is a generic
// struct so this side needs no generated stubs.
const notifyMethod = "/boardcheck.v1.Notifier/Notify"

// GRPCNotifier delivers events over a gRPC connection to the bot
// front-end.
type GRPCNotifier struct {
	target string
	conn   *grpc.ClientConn
}

// NewGRPCNotifier dials the front-end.
func NewGRPCNotifier(ctx context.Context, target string) (*GRPCNotifier, error) {
	dialTarget := target
	var opts []grpc.DialOption

	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		dialTarget = strings.TrimPrefix(dialTarget, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		dialTarget = strings.TrimPrefix(dialTarget, "http://")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, dialTarget, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial notifier endpoint %s: %w", dialTarget, err)
	}

	return &GRPCNotifier{target: target, conn: conn}, nil
}

func (n *GRPCNotifier) Notify(ctx context.Context, userID int64, event Event) error {
	payload, err := structpb.NewStruct(map[string]any{
		"user_id":        userID,
		"board_id":       event.BoardID,
		"kind":           string(event.Kind),
		"new_state":      string(event.NewState),
		"observed_value": event.ObservedValue,
	})
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	var reply structpb.Struct
	if err := n.conn.Invoke(ctx, notifyMethod, payload, &reply); err != nil {
		if delay, ok := retryDelay(err); ok {
			return fmt.Errorf("notifier busy, retry after %s: %w", delay, err)
		}
		return fmt.Errorf("deliver notification: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (n *GRPCNotifier) Close() error {
	return n.conn.Close()
}

// retryDelay extracts the server-suggested delay from a RESOURCE_EXHAUSTED
// status, when present.
func retryDelay(err error) (time.Duration, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return 0, false
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			return info.GetRetryDelay().AsDuration(), true
		}
	}
	return 0, false
}
