package dialer

import (
	"time"

	pb "github.com/dense-identity/confdialer/api/go/dialer/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Client owns the gRPC connection and DialerService stub.
type Client struct {
	conn *grpc.ClientConn
	Stub pb.DialerServiceClient
}

// NewClient connects to addr with TLS (system roots) or plaintext. A
// non-empty token is sent as a bearer token on every call.
func NewClient(addr string, useTLS bool, token string, extraOpts ...grpc.DialOption) (*Client, error) {
	var creds grpc.DialOption
	if useTLS {
		creds = grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, ""))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	kacp := keepalive.ClientParameters{
		Time:                30 * time.Second,
		Timeout:             10 * time.Second,
		PermitWithoutStream: true,
	}

	opts := []grpc.DialOption{
		creds,
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(4*1024*1024),
			grpc.MaxCallSendMsgSize(4*1024*1024),
		),
	}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(BearerToken(token)))
	}
	opts = append(opts, extraOpts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, Stub: pb.NewDialerServiceClient(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
