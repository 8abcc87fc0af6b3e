package consul

import (
	"fmt"
	"testing"

	"github.com/airenas/voxy/internal/pkg/test/mocks"
	tapi "github.com/airenas/voxy/internal/pkg/transcriber/api"
	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
)

func Test_Get_empty(t *testing.T) {
	p := newProvider(nil, "asr")
	tr, name, err := p.Get()
	assert.Nil(t, tr)
	assert.Equal(t, "", name)
	assert.NotNil(t, err)
}

func Test_Get_single(t *testing.T) {
	p := newProvider(nil, "asr")
	tr := &mocks.Transcriber{}
	p.trans = append(p.trans, &trWrap{real: tr, srv: "olia", priority: 1})
	rtr, name, err := p.Get()
	testAssertEqPtr(t, tr, rtr)
	assert.Equal(t, "olia", name)
	assert.Nil(t, err)
}

func Test_Get_byPriority(t *testing.T) {
	p := newProvider(nil, "asr")
	tr := &mocks.Transcriber{}
	tr1 := &mocks.Transcriber{}
	p.trans = append(p.trans, &trWrap{real: tr, srv: "olia", priority: 1})
	p.trans = append(p.trans, &trWrap{real: tr1, srv: "olia1", priority: 1})
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		_, name, err := p.Get()
		assert.Nil(t, err)
		seen[name] = true
	}
	assert.True(t, seen["olia"])
	assert.True(t, seen["olia1"])
}

func Test_Get_wrongPrioritySum(t *testing.T) {
	p := newProvider(nil, "asr")
	p.trans = append(p.trans, &trWrap{real: &mocks.Transcriber{}, srv: "olia"})
	p.trans = append(p.trans, &trWrap{real: &mocks.Transcriber{}, srv: "olia1"})
	_, _, err := p.Get()
	assert.NotNil(t, err)
}

func testAssertEqPtr(t *testing.T, tr, exp tapi.Transcriber) {
	t.Helper()
	assert.Equal(t, fmt.Sprintf("%p", tr), fmt.Sprintf("%p", exp))
}

func newTestEntry(meta map[string]string) *api.ServiceEntry {
	return &api.ServiceEntry{Service: &api.AgentService{Service: "olia", Port: 80, Address: "srv", Meta: meta}}
}

func TestProvider_updateSrv_no_meta(t *testing.T) {
	p := newProvider(nil, "asr")
	err := p.updateSrv([]*api.ServiceEntry{newTestEntry(map[string]string{})})
	assert.NotNil(t, err)
	assert.Equal(t, 0, len(p.trans))
}

func TestProvider_updateSrv_adds(t *testing.T) {
	p := newProvider(nil, "asr")
	err := p.updateSrv([]*api.ServiceEntry{newTestEntry(map[string]string{"inferenceURL": "inference"})})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.trans))
	assert.Equal(t, 1.0, p.trans[0].priority)
}

func TestProvider_updateSrv_addsSame(t *testing.T) {
	p := newProvider(nil, "asr")
	err := p.updateSrv([]*api.ServiceEntry{newTestEntry(map[string]string{"inferenceURL": "inference"})})
	assert.Nil(t, err)
	cp := p.trans[0]
	err = p.updateSrv([]*api.ServiceEntry{newTestEntry(map[string]string{"inferenceURL": "inference"})})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.trans))
	assert.Same(t, cp, p.trans[0])
}

func TestProvider_updateSrv_updates(t *testing.T) {
	p := newProvider(nil, "asr")
	err := p.updateSrv([]*api.ServiceEntry{newTestEntry(map[string]string{"inferenceURL": "inference"})})
	assert.Nil(t, err)
	cp := p.trans[0]
	err = p.updateSrv([]*api.ServiceEntry{newTestEntry(map[string]string{"inferenceURL": "inference", "priority": "2"})})
	assert.Nil(t, err)
	assert.Equal(t, 1, len(p.trans))
	assert.NotSame(t, cp, p.trans[0])
	assert.Equal(t, 2.0, p.trans[0].priority)
}

func TestProvider_updateSrv_drops(t *testing.T) {
	p := newProvider(nil, "asr")
	err := p.updateSrv([]*api.ServiceEntry{newTestEntry(map[string]string{"inferenceURL": "inference"})})
	assert.Nil(t, err)
	err = p.updateSrv(nil)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(p.trans))
}

func TestProvider_updateSrv_wrongPriority(t *testing.T) {
	tests := []struct {
		name string
		v    string
	}{
		{name: "not a number", v: "olia"},
		{name: "too small", v: "0.1"},
		{name: "too big", v: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(nil, "asr")
			err := p.updateSrv([]*api.ServiceEntry{newTestEntry(
				map[string]string{"inferenceURL": "inference", "priority": tt.v})})
			assert.NotNil(t, err)
			assert.Equal(t, 0, len(p.trans))
		})
	}
}

func Test_getURL(t *testing.T) {
	assert.Equal(t, "http://srv:80/inference", getURL(newTestEntry(map[string]string{"inferenceURL": "inference"}), inferenceKey))
	assert.Equal(t, "https://srv:80/inference", getURL(newTestEntry(
		map[string]string{"inferenceURL": "inference", "HTTPSSL": "true"}), inferenceKey))
	assert.Equal(t, "", getURL(newTestEntry(map[string]string{}), inferenceKey))
}
