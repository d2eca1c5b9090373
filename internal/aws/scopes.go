package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"complyscan/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

var (
	EnableDiagnostics = false
)

func logDiagnostic(format string, args ...interface{}) {
	if EnableDiagnostics {
		fmt.Fprintf(os.Stderr, "[DIAG-AWS] "+format+"\n", args...)
	}
}

// Regions scanned when DescribeRegions itself is not permitted.
var fallbackRegions = []string{
	"us-east-1", "us-west-2", "eu-west-1", "eu-central-1", "ap-southeast-1",
}

// ScopeDiscoverer enumerates the accounts and regions the orchestrator fans
// out over.
type ScopeDiscoverer struct {
	profile string
}

func NewScopeDiscoverer(profile string) *ScopeDiscoverer {
	return &ScopeDiscoverer{profile: profile}
}

func (s *ScopeDiscoverer) loadConfig(ctx context.Context) (awssdk.Config, error) {
	var opts []func(*config.LoadOptions) error
	if s.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(s.profile))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// ListAccounts enumerates organization member accounts, falling back to the
// caller's own account when the credentials are not an organization
// management role.
func (s *ScopeDiscoverer) ListAccounts(ctx context.Context) ([]models.Account, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load AWS config: %w", err)
	}

	orgClient := organizations.NewFromConfig(cfg)
	var accounts []models.Account
	var nextToken *string
	for {
		out, err := orgClient.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: nextToken})
		if err != nil {
			if isOrgUnavailable(err) {
				logDiagnostic("organizations listing unavailable (%v), falling back to caller identity", err)
				return s.callerAccount(ctx, cfg)
			}
			return nil, fmt.Errorf("error listing organization accounts: %w", err)
		}
		for _, acct := range out.Accounts {
			if acct.Id == nil {
				continue
			}
			account := models.Account{ID: *acct.Id}
			if acct.Name != nil {
				account.Name = *acct.Name
			}
			accounts = append(accounts, account)
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	logDiagnostic("discovered %d organization accounts", len(accounts))
	return accounts, nil
}

func (s *ScopeDiscoverer) callerAccount(ctx context.Context, cfg awssdk.Config) ([]models.Account, error) {
	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("error resolving caller identity: %w", err)
	}
	return []models.Account{{ID: *identity.Account}}, nil
}

// ListRegions enumerates enabled regions for an account. Denied region
// discovery degrades to a conservative static list rather than failing the
// account.
func (s *ScopeDiscoverer) ListRegions(ctx context.Context, account models.Account, service string) ([]string, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	out, err := ec2.NewFromConfig(cfg).DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		logDiagnostic("DescribeRegions failed for account %s (%v), using fallback region list", account.ID, err)
		return fallbackRegions, nil
	}

	var regions []string
	for _, region := range out.Regions {
		if region.RegionName != nil {
			regions = append(regions, *region.RegionName)
		}
	}
	sort.Strings(regions)
	logDiagnostic("discovered %d regions for account %s", len(regions), account.ID)
	return regions, nil
}

// isOrgUnavailable reports errors that mean "this account is not usable as
// an organization root", which is expected and survivable.
func isOrgUnavailable(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AWSOrganizationsNotInUseException", "AccessDeniedException", "AccessDenied":
		return true
	}
	return false
}
