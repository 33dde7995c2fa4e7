package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxy_Validate(t *testing.T) {
	p := &Proxy{Name: "living room"}
	require.NoError(t, p.Validate())
	// Zero starting number is normalized to 1
	assert.Equal(t, 1, p.StartingChannelNumber)

	p = &Proxy{Name: "custom", StartingChannelNumber: 100}
	require.NoError(t, p.Validate())
	assert.Equal(t, 100, p.StartingChannelNumber)

	p = &Proxy{}
	assert.ErrorIs(t, p.Validate(), ErrNameRequired)
}

func TestProxy_StatusTransitions(t *testing.T) {
	p := &Proxy{Name: "living room"}

	p.MarkGenerating()
	assert.Equal(t, ProxyStatusGenerating, p.Status)

	p.MarkSuccess(120, 4800)
	assert.Equal(t, ProxyStatusSuccess, p.Status)
	assert.Equal(t, 120, p.ChannelCount)
	assert.Equal(t, 4800, p.ProgramCount)
	assert.NotNil(t, p.LastGeneratedAt)

	p.MarkFailed(errors.New("publish failed"))
	assert.Equal(t, ProxyStatusFailed, p.Status)
	assert.Equal(t, "publish failed", p.LastError)
}

func TestProxyJoinValidation(t *testing.T) {
	ps := &ProxySource{ProxyID: NewULID(), SourceID: NewULID(), PriorityOrder: 1}
	assert.NoError(t, ps.Validate())
	assert.ErrorIs(t, (&ProxySource{SourceID: NewULID()}).Validate(), ErrProxyIDRequired)
	assert.ErrorIs(t, (&ProxySource{ProxyID: NewULID()}).Validate(), ErrSourceIDRequired)

	pes := &ProxyEpgSource{ProxyID: NewULID(), EpgSourceID: NewULID(), PriorityOrder: 1}
	assert.NoError(t, pes.Validate())
	assert.ErrorIs(t, (&ProxyEpgSource{ProxyID: NewULID()}).Validate(), ErrEpgSourceIDRequired)

	pf := &ProxyFilter{ProxyID: NewULID(), FilterID: NewULID(), PriorityOrder: 1, IsActive: BoolPtr(true)}
	assert.NoError(t, pf.Validate())
	assert.ErrorIs(t, (&ProxyFilter{ProxyID: NewULID()}).Validate(), ErrFilterIDRequired)

	pmr := &ProxyMappingRule{ProxyID: NewULID(), RuleID: NewULID(), PriorityOrder: 1}
	assert.NoError(t, pmr.Validate())
	assert.ErrorIs(t, (&ProxyMappingRule{ProxyID: NewULID()}).Validate(), ErrRuleIDRequired)
}
