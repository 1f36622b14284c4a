package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// rdsTokenLifetime is how long an RDS IAM token is accepted.
const rdsTokenLifetime = 15 * time.Minute

// AWSIAMTokenProvider builds RDS IAM authentication tokens using the default
// AWS credential chain. The AWS config is loaded once and reused.
type AWSIAMTokenProvider struct {
	endpoint string // host:port
	region   string
	username string

	once    sync.Once
	cfg     aws.Config
	cfgErr  error
	loadCfg func(ctx context.Context, region string) (aws.Config, error)
}

// NewAWSIAMTokenProvider creates a token provider for AWS RDS IAM authentication.
func NewAWSIAMTokenProvider(endpoint, region, username string) (*AWSIAMTokenProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("AWS IAM auth requires endpoint (host:port): %w", pgetl.ErrInvalidConfig)
	}
	if region == "" {
		return nil, fmt.Errorf("AWS IAM auth requires aws_region or $AWS_REGION: %w", pgetl.ErrInvalidConfig)
	}
	if username == "" {
		return nil, fmt.Errorf("AWS IAM auth requires a database username: %w", pgetl.ErrInvalidConfig)
	}

	return &AWSIAMTokenProvider{
		endpoint: endpoint,
		region:   region,
		username: username,
		loadCfg: func(ctx context.Context, region string) (aws.Config, error) {
			return config.LoadDefaultConfig(ctx, config.WithRegion(region))
		},
	}, nil
}

// GetToken builds a signed RDS auth token.
func (p *AWSIAMTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	p.once.Do(func() {
		p.cfg, p.cfgErr = p.loadCfg(ctx, p.region)
	})
	if p.cfgErr != nil {
		return "", time.Time{}, fmt.Errorf("failed to load AWS config: %w", p.cfgErr)
	}

	token, err := auth.BuildAuthToken(ctx, p.endpoint, p.region, p.username, p.cfg.Credentials)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build RDS auth token: %w", err)
	}
	return token, time.Now().Add(rdsTokenLifetime), nil
}

func (p *AWSIAMTokenProvider) String() string {
	return fmt.Sprintf("AWSIAM(endpoint=%s, region=%s, user=%s)", p.endpoint, p.region, p.username)
}
