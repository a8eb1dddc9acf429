package connections

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

// Well-known provider IDs. The registry is open-ended; these are the ones
// with provider-specific connect parameters.
const (
	ProviderAWS    = "aws"
	ProviderAzure  = "azure"
	ProviderGCP    = "gcp"
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// Connect-time parameter keys.
const (
	ParamTenantID  = "tenantId"
	ParamAccountID = "accountId"
	ParamRoleArn   = "roleArn"
)

var (
	awsAccountIDPattern = regexp.MustCompile(`^\d{12}$`)
	awsRoleArnPattern   = regexp.MustCompile(`^arn:aws:iam::\d{12}:role/.+$`)
)

// Provider describes one OAuth 2.0 provider the dashboard can connect.
// Azure endpoint URLs may contain a "{tenant}" placeholder that is filled
// from the tenantId connect parameter.
type Provider struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
	Issuer       string   `yaml:"issuer,omitempty"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// OAuth2Config builds the x/oauth2 config for this provider, resolving
// any tenant placeholder from the connect parameters.
func (p Provider) OAuth2Config(params map[string]string) *oauth2.Config {
	authURL := p.AuthURL
	tokenURL := p.TokenURL
	if tenant := params[ParamTenantID]; tenant != "" {
		authURL = strings.ReplaceAll(authURL, "{tenant}", tenant)
		tokenURL = strings.ReplaceAll(tokenURL, "{tenant}", tenant)
	}
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}
}

// ValidateConnectParams checks the provider-specific required parameters
// before any redirect state is created.
func (p Provider) ValidateConnectParams(params map[string]string) error {
	switch p.ID {
	case ProviderAzure:
		if params[ParamTenantID] == "" {
			return &ValidationError{Provider: p.ID, Param: ParamTenantID, Reason: "is required"}
		}
	case ProviderAWS:
		accountID := params[ParamAccountID]
		if accountID == "" {
			return &ValidationError{Provider: p.ID, Param: ParamAccountID, Reason: "is required"}
		}
		if !awsAccountIDPattern.MatchString(accountID) {
			return &ValidationError{Provider: p.ID, Param: ParamAccountID, Reason: "must be a 12-digit account ID"}
		}
		roleArn := params[ParamRoleArn]
		if roleArn == "" {
			return &ValidationError{Provider: p.ID, Param: ParamRoleArn, Reason: "is required"}
		}
		if !awsRoleArnPattern.MatchString(roleArn) {
			return &ValidationError{Provider: p.ID, Param: ParamRoleArn, Reason: "must be a cross-account IAM role ARN"}
		}
	}
	return nil
}

type providersFile struct {
	Providers []Provider `yaml:"providers"`
}

// LoadProviders reads the provider registry from a YAML file.
func LoadProviders(fs afero.Fs, path string) ([]Provider, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadProviders] read providers file")
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "[LoadProviders] parse providers file")
	}

	for _, p := range file.Providers {
		if p.ID == "" {
			return nil, errors.New("[LoadProviders] provider with empty id")
		}
		if p.ClientID == "" || p.AuthURL == "" || p.TokenURL == "" {
			return nil, errors.Errorf("[LoadProviders] provider %q missing client_id, auth_url or token_url", p.ID)
		}
	}
	return file.Providers, nil
}
