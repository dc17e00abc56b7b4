package request

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const terraformEvent = `{
  "repo_name": "myrepo",
  "repository_uri": "123456789012.dkr.ecr.us-east-1.amazonaws.com/myrepo",
  "image_tag": "v1",
  "image_tags_additional": ["latest", "stable"],
  "s3_bucket": "source-bucket",
  "code_location": "myrepo.zip",
  "task_definition_arn": "arn:aws:ecs:us-east-1:123456789012:task-definition/kaniko:3",
  "cluster_name": "builders",
  "subnet_id": "subnet-0abc",
  "security_group_id": "sg-0abc",
  "tf": {"action": "create", "prev_input": {"key1": "value1"}}
}`

func validRequest() BuildRequest {
	return BuildRequest{
		RepoName:          "myrepo",
		RepositoryURI:     "123456789012.dkr.ecr.us-east-1.amazonaws.com/myrepo",
		ImageTag:          "v1",
		AdditionalTags:    []string{},
		S3Bucket:          "source-bucket",
		CodeLocation:      "myrepo.zip",
		TaskDefinitionARN: "arn:aws:ecs:us-east-1:123456789012:task-definition/kaniko:3",
		ClusterName:       "builders",
		SubnetID:          "subnet-0abc",
		SecurityGroupID:   "sg-0abc",
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	req, err := Decode([]byte(terraformEvent))
	require.NoError(t, err)
	require.NoError(t, req.Validate())

	assert.Equal(t, "myrepo", req.RepoName)
	assert.Equal(t, "v1", req.ImageTag)
	assert.Equal(t, []string{"latest", "stable"}, req.AdditionalTags)
	assert.Equal(t, "source-bucket", req.S3Bucket)
	assert.Equal(t, "sg-0abc", req.SecurityGroupID)
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	doc := `
repo_name: myrepo
repository_uri: registry.local/myrepo
image_tag: v1
s3_bucket: source-bucket
code_location: src/app.zip
task_definition_arn: kaniko
cluster_name: builders
subnet_id: subnet-1
security_group_id: sg-1
`
	req, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, req.Validate())
	assert.Equal(t, "src/app.zip", req.CodeLocation)
	assert.NotNil(t, req.AdditionalTags)
	assert.Empty(t, req.AdditionalTags)
}

func TestRead(t *testing.T) {
	t.Parallel()

	req, err := Read(strings.NewReader(terraformEvent))
	require.NoError(t, err)
	assert.Equal(t, "builders", req.ClusterName)
}

func TestDecodeInvalid(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"repo_name": [1, 2]}`))
	require.Error(t, err)
}

func TestValidateMissingFields(t *testing.T) {
	t.Parallel()

	err := BuildRequest{}.Validate()
	require.Error(t, err)
	for _, key := range []string{"repo_name", "repository_uri", "image_tag", "s3_bucket", "code_location", "task_definition_arn", "cluster_name", "subnet_id", "security_group_id"} {
		assert.Contains(t, err.Error(), key+" is required")
	}
}

func TestValidateTags(t *testing.T) {
	t.Parallel()

	t.Run("repeats primary", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.AdditionalTags = []string{"latest", "v1"}
		err := req.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `repeat image_tag "v1"`)
	})

	t.Run("duplicate additional", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.AdditionalTags = []string{"latest", "latest"}
		err := req.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate tags: latest")
	})

	t.Run("empty additional", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.AdditionalTags = []string{""}
		require.Error(t, req.Validate())
	})
}

func TestTagsAndDestination(t *testing.T) {
	t.Parallel()

	req := validRequest()
	req.AdditionalTags = []string{"b", "a"}
	assert.Equal(t, []string{"v1", "b", "a"}, req.Tags())
	assert.Equal(t, "123456789012.dkr.ecr.us-east-1.amazonaws.com/myrepo:v1", req.Destination())
	// Tags must not alias the request's slice
	tags := req.Tags()
	tags[1] = "mutated"
	assert.Equal(t, []string{"b", "a"}, req.AdditionalTags)
}

func TestResponseJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewResponse("myrepo", "v1", "sha256:abc"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":200,"repositoryName":"myrepo","imageTag":"v1","imageDigest":"sha256:abc"}`, string(data))
}
