package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordCreatedUTCAcceptsBothForms(t *testing.T) {
	r1 := Record{"created_utc": float64(1451606400)}
	n1, ok1 := r1.CreatedUTC()
	assert.True(t, ok1)
	assert.Equal(t, int64(1451606400), n1)

	r2 := Record{"created_utc": "1451606400"}
	n2, ok2 := r2.CreatedUTC()
	assert.True(t, ok2)
	assert.Equal(t, int64(1451606400), n2)

	r3 := Record{}
	_, ok3 := r3.CreatedUTC()
	assert.False(t, ok3)
}

func TestIsPseudoUser(t *testing.T) {
	assert.True(t, IsPseudoUser("[deleted]"))
	assert.True(t, IsPseudoUser("[removed]"))
	assert.False(t, IsPseudoUser("real_user"))
}

func TestRecordBodyPrefersBodyOverSelftext(t *testing.T) {
	r := Record{"body": "comment body", "selftext": "post text"}
	assert.Equal(t, "comment body", r.Body())

	r2 := Record{"selftext": "post text"}
	assert.Equal(t, "post text", r2.Body())
}

func TestRecordParentFullname(t *testing.T) {
	r := Record{"parent_id": "t3_abc123"}
	fn, ok := r.ParentFullname()
	assert.True(t, ok)
	assert.Equal(t, KindSubmission, fn.Kind)
	assert.Equal(t, "abc123", fn.ID)
	assert.Equal(t, "t3_abc123", fn.String())

	r2 := Record{}
	_, ok2 := r2.ParentFullname()
	assert.False(t, ok2)
}

func TestRecordOwnFullnameEqualsSelfReferencingParent(t *testing.T) {
	r := Record{"id": "xyz", "parent_id": "t1_xyz"}
	own, ok := r.OwnFullname(KindComment)
	assert.True(t, ok)
	parent, _ := r.ParentFullname()
	assert.Equal(t, own, parent)
}
