package repository

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// FabricOptions locates the peer and the client identity.
type FabricOptions struct {
	PeerEndpoint string
	GatewayPeer  string
	MSPID        string
	CertPath     string
	KeyDir       string
	TLSCertPath  string
	Channel      string
	Chaincode    string
}

// FabricStorage persists entries on a Hyperledger Fabric channel through a
// chaincode exposing GetData, SetData and IsAvailable.
type FabricStorage struct {
	clientConnection *grpc.ClientConn
	gateway          *client.Gateway
	contract         *client.Contract
}

func NewFabricStorage(opts FabricOptions) (*FabricStorage, error) {
	cert, err := loadCertificate(opts.CertPath)
	if err != nil {
		return nil, err
	}
	key, err := loadFabricKey(opts.KeyDir)
	if err != nil {
		return nil, err
	}

	id, err := identity.NewX509Identity(opts.MSPID, cert)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	transportCreds, err := credentials.NewClientTLSFromFile(opts.TLSCertPath, opts.GatewayPeer)
	if err != nil {
		return nil, fmt.Errorf("failed to load peer TLS certificate: %w", err)
	}
	conn, err := grpc.NewClient(opts.PeerEndpoint, grpc.WithTransportCredentials(transportCreds))
	if err != nil {
		return nil, fmt.Errorf("failed to dial peer: %w", err)
	}

	gateway, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(5*time.Second),
		client.WithEndorseTimeout(15*time.Second),
		client.WithSubmitTimeout(5*time.Second),
		client.WithCommitStatusTimeout(1*time.Minute),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect gateway: %w", err)
	}

	contract := gateway.GetNetwork(opts.Channel).GetContract(opts.Chaincode)
	return &FabricStorage{
		clientConnection: conn,
		gateway:          gateway,
		contract:         contract,
	}, nil
}

// Get is an evaluate-only query; it does not create a block.
func (f *FabricStorage) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := f.contract.EvaluateWithContext(ctx, "GetData", client.WithArguments(key))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate GetData(%s): %w", key, err)
	}
	if result == nil {
		result = []byte{}
	}
	return result, nil
}

// Set endorses, submits and waits for the commit.
func (f *FabricStorage) Set(ctx context.Context, key string, value []byte) error {
	if _, err := f.contract.SubmitWithContext(ctx, "SetData", client.WithBytesArguments([]byte(key), value)); err != nil {
		return fmt.Errorf("failed to submit SetData(%s): %w", key, err)
	}
	return nil
}

func (f *FabricStorage) Ping(ctx context.Context) error {
	result, err := f.contract.EvaluateWithContext(ctx, "IsAvailable")
	if err != nil {
		return fmt.Errorf("failed to evaluate IsAvailable: %w", err)
	}
	if string(result) != "true" {
		return fmt.Errorf("chaincode reports unavailable")
	}
	return nil
}

func (f *FabricStorage) Close() error {
	f.gateway.Close()
	return f.clientConnection.Close()
}

func loadCertificate(filename string) (*x509.Certificate, error) {
	certificatePEM, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	return identity.CertificateFromPEM(certificatePEM)
}

func loadFabricKey(dir string) (any, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("key directory %s is empty", dir)
	}
	privateKeyPEM, err := os.ReadFile(path.Join(dir, files[0].Name()))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return identity.PrivateKeyFromPEM(privateKeyPEM)
}
