package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUpload(t *testing.T) {
	before := testutil.ToFloat64(uploadOps.WithLabelValues("ok"))
	RecordUpload("ok")
	RecordUpload("ok")
	assert.Equal(t, before+2, testutil.ToFloat64(uploadOps.WithLabelValues("ok")))
}

func TestRecordFallback(t *testing.T) {
	before := testutil.ToFloat64(analyzerFallbacks.WithLabelValues("inference"))
	RecordFallback("inference")
	assert.Equal(t, before+1, testutil.ToFloat64(analyzerFallbacks.WithLabelValues("inference")))
}

func TestRecordCache(t *testing.T) {
	hits := testutil.ToFloat64(cacheHits)
	misses := testutil.ToFloat64(cacheMisses)
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheMiss()
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheHits))
	assert.Equal(t, misses+2, testutil.ToFloat64(cacheMisses))
}

func TestHistogramsCollect(t *testing.T) {
	RecordOCRDuration("tesseract", 0.3)
	RecordInferenceDuration("rules", 0.001)
	RecordRequestDuration("POST", "/upload_image/", "200", 0.4)

	assert.Equal(t, 1, testutil.CollectAndCount(ocrDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(inferenceDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(requestDuration))
}
