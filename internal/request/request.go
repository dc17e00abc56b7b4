// Package request holds the controller's invocation payload and response.
package request

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/samber/lo"
	"sigs.k8s.io/yaml"
)

// BuildRequest describes the image to ensure and where its source lives.
//
// The JSON keys match the payload Terraform sends to the Lambda; extra keys
// such as the "tf" envelope are ignored.
type BuildRequest struct {
	RepoName       string   `json:"repo_name"`
	RepositoryURI  string   `json:"repository_uri"`
	ImageTag       string   `json:"image_tag"`
	AdditionalTags []string `json:"image_tags_additional"`

	S3Bucket     string `json:"s3_bucket"`
	CodeLocation string `json:"code_location"`

	TaskDefinitionARN string `json:"task_definition_arn"`
	ClusterName       string `json:"cluster_name"`
	SubnetID          string `json:"subnet_id"`
	SecurityGroupID   string `json:"security_group_id"`
}

// Response is returned on success.
type Response struct {
	StatusCode     int    `json:"statusCode"`
	RepositoryName string `json:"repositoryName"`
	ImageTag       string `json:"imageTag"`
	ImageDigest    string `json:"imageDigest"`
}

func NewResponse(repositoryName, tag, digest string) Response {
	return Response{
		StatusCode:     http.StatusOK,
		RepositoryName: repositoryName,
		ImageTag:       tag,
		ImageDigest:    digest,
	}
}

// Decode parses a JSON or YAML document into a BuildRequest. The result is
// not validated.
func Decode(data []byte) (BuildRequest, error) {
	var req BuildRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return BuildRequest{}, fmt.Errorf("decoding build request: %w", err)
	}
	if req.AdditionalTags == nil {
		req.AdditionalTags = []string{}
	}
	return req, nil
}

func Read(r io.Reader) (BuildRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return BuildRequest{}, fmt.Errorf("reading build request: %w", err)
	}
	return Decode(data)
}

// Validate reports every missing field and tag conflict at once.
func (r BuildRequest) Validate() error {
	var errs []error

	required := []struct {
		key   string
		value string
	}{
		{"repo_name", r.RepoName},
		{"repository_uri", r.RepositoryURI},
		{"image_tag", r.ImageTag},
		{"s3_bucket", r.S3Bucket},
		{"code_location", r.CodeLocation},
		{"task_definition_arn", r.TaskDefinitionARN},
		{"cluster_name", r.ClusterName},
		{"subnet_id", r.SubnetID},
		{"security_group_id", r.SecurityGroupID},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", field.key))
		}
	}

	if lo.Contains(r.AdditionalTags, "") {
		errs = append(errs, errors.New("image_tags_additional must not contain empty tags"))
	}
	if r.ImageTag != "" && lo.Contains(r.AdditionalTags, r.ImageTag) {
		errs = append(errs, fmt.Errorf("image_tags_additional must not repeat image_tag %q", r.ImageTag))
	}
	if dups := lo.FindDuplicates(r.AdditionalTags); len(dups) > 0 {
		errs = append(errs, fmt.Errorf("image_tags_additional has duplicate tags: %s", strings.Join(dups, ", ")))
	}

	return errors.Join(errs...)
}

// Tags returns the primary tag followed by the additional tags, in order.
func (r BuildRequest) Tags() []string {
	return append([]string{r.ImageTag}, r.AdditionalTags...)
}

// Destination is the image reference for the primary tag.
func (r BuildRequest) Destination() string {
	return r.RepositoryURI + ":" + r.ImageTag
}
