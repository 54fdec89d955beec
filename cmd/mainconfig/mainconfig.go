package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/vendor-negotiation/internal/config"
)

// LoadAWSConfig builds the shared AWS SDK config. AWS_ENDPOINT_OVERRIDE routes
// Bedrock, SQS and S3 to a local emulator.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID, s3.ServiceID, bedrockruntime.ServiceID:
					return aws.Endpoint{
						URL:               endpoint,
						PartitionID:       "aws",
						SigningRegion:     cfg.AWSRegion,
						HostnameImmutable: true,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}
