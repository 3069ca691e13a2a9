package s3test

import (
	"encoding/xml"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, srv *Server, path, accessKey string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL()+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential="+accessKey+"/20240101/us-east-1/s3/aws4_request")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer_ListBucketsXML(t *testing.T) {
	srv := New(t)
	srv.CreateBucket("beta")
	srv.CreateBucket("alpha")

	resp, body := get(t, srv, "/", DefaultAccessKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res listAllMyBucketsResult
	require.NoError(t, xml.Unmarshal(body, &res))
	assert.Equal(t, "ListAllMyBucketsResult", res.XMLName.Local)
	require.Len(t, res.Buckets.Bucket, 2)
	assert.Equal(t, "alpha", res.Buckets.Bucket[0].Name)
	assert.NotEmpty(t, res.Buckets.Bucket[0].CreationDate)
	assert.Contains(t, string(body), "<Buckets><Bucket><Name>alpha</Name>")
}

func TestServer_ListObjectsV2Paging(t *testing.T) {
	srv := New(t)
	srv.SetPageSize(2)
	for _, k := range []string{"a.txt", "docs/1.md", "docs/2.md", "z.txt"} {
		srv.PutObject("demo", k, []byte(k))
	}

	resp, body := get(t, srv, "/demo?list-type=2&delimiter=%2F", DefaultAccessKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page listBucketV2Result
	require.NoError(t, xml.Unmarshal(body, &page))
	assert.True(t, page.IsTruncated)
	assert.Equal(t, 2, page.KeyCount)
	require.Len(t, page.Contents, 1)
	assert.Equal(t, "a.txt", page.Contents[0].Key)
	assert.Equal(t, int64(5), page.Contents[0].Size)
	require.Len(t, page.CommonPrefixes, 1)
	assert.Equal(t, "docs/", page.CommonPrefixes[0].Prefix)
	require.NotEmpty(t, page.NextContinuationToken)

	resp, body = get(t, srv, "/demo?list-type=2&delimiter=%2F&continuation-token="+page.NextContinuationToken, DefaultAccessKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var next listBucketV2Result
	require.NoError(t, xml.Unmarshal(body, &next))
	assert.False(t, next.IsTruncated)
	require.Len(t, next.Contents, 1)
	assert.Equal(t, "z.txt", next.Contents[0].Key)
}

func TestServer_ErrorXML(t *testing.T) {
	srv := New(t)
	srv.CreateBucket("demo")

	resp, body := get(t, srv, "/demo/missing.txt", DefaultAccessKey)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e errorResponse
	require.NoError(t, xml.Unmarshal(body, &e))
	assert.Equal(t, "NoSuchKey", e.Code)
	assert.Equal(t, "demo", e.BucketName)
	assert.Equal(t, "missing.txt", e.Key)

	resp, body = get(t, srv, "/", "wrong")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NoError(t, xml.Unmarshal(body, &e))
	assert.Equal(t, "InvalidAccessKeyId", e.Code)
}
