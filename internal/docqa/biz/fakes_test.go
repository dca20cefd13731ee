package biz

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asakusa/enterprise-rag/internal/docqa/metrics"
	"github.com/asakusa/enterprise-rag/internal/docqa/store"
	"github.com/asakusa/enterprise-rag/internal/model"
	"github.com/asakusa/enterprise-rag/pkg/infra/resilience"
)

// fakeKnowledge 可编程的检索服务替身，记录每个方法的调用次数。
type fakeKnowledge struct {
	mu    sync.Mutex
	calls map[string]int
	order []string

	existingIndex *model.KnowledgeIndex
	existingAgent *model.Agent

	// syncStatuses 依次返回，用完后重复最后一个
	syncStatuses []model.IndexStatus
	syncPolls    int
	// syncFailures 前 N 次状态查询返回错误
	syncFailures int

	response *store.GenerateResponse
	panicOn  string

	storageURI string
	agentSpec  store.AgentSpec

	// onSync 在 Synchronize 返回前调用
	onSync func()

	errs map[string]error
}

func newFakeKnowledge() *fakeKnowledge {
	return &fakeKnowledge{
		calls:        make(map[string]int),
		errs:         make(map[string]error),
		syncStatuses: []model.IndexStatus{model.IndexSyncing, model.IndexSynced},
		response: &store.GenerateResponse{
			Output: &store.GenerateOutput{Text: "Employees get 20 days of annual leave."},
			Citations: []*store.CitationGroup{{
				References: []*store.Reference{
					{Location: &store.Location{S3: &store.URIRef{URI: "s3://docs/enterprise_documents/hr_policy.md"}}},
				},
			}},
		},
	}
}

func (f *fakeKnowledge) enter(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.order = append(f.order, name)
	if f.panicOn == name {
		panic("boom in " + name)
	}
	return f.errs[name]
}

func (f *fakeKnowledge) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeKnowledge) setErr(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeKnowledge) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeKnowledge) RetrieveAndGenerate(ctx context.Context, question, indexID, modelID string) (*store.GenerateResponse, error) {
	if err := f.enter("RetrieveAndGenerate"); err != nil {
		return nil, err
	}
	return f.response, nil
}

func (f *fakeKnowledge) FindIndex(ctx context.Context, name string) (*model.KnowledgeIndex, error) {
	if err := f.enter("FindIndex"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existingIndex == nil {
		return nil, nil
	}
	idx := *f.existingIndex
	return &idx, nil
}

func (f *fakeKnowledge) CreateIndex(ctx context.Context, name, description, storageURI string) (*model.KnowledgeIndex, error) {
	if err := f.enter("CreateIndex"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storageURI = storageURI
	f.existingIndex = &model.KnowledgeIndex{ID: "IDX1", DataSourceID: "DS1", Name: name, Description: description, Status: model.IndexCreating}
	idx := *f.existingIndex
	return &idx, nil
}

func (f *fakeKnowledge) Synchronize(ctx context.Context, indexID, dataSourceID string) (string, error) {
	if err := f.enter("Synchronize"); err != nil {
		return "", err
	}
	if f.onSync != nil {
		f.onSync()
	}
	return "JOB1", nil
}

func (f *fakeKnowledge) SyncStatus(ctx context.Context, indexID, dataSourceID, jobID string) (model.IndexStatus, error) {
	if err := f.enter("SyncStatus"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncFailures > 0 {
		f.syncFailures--
		return "", errors.New("status endpoint unavailable")
	}
	i := f.syncPolls
	if i >= len(f.syncStatuses) {
		i = len(f.syncStatuses) - 1
	}
	f.syncPolls++
	return f.syncStatuses[i], nil
}

func (f *fakeKnowledge) FindAgent(ctx context.Context, name string) (*model.Agent, error) {
	if err := f.enter("FindAgent"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existingAgent == nil {
		return nil, nil
	}
	a := *f.existingAgent
	return &a, nil
}

func (f *fakeKnowledge) CreateAgent(ctx context.Context, spec store.AgentSpec) (*model.Agent, error) {
	if err := f.enter("CreateAgent"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agentSpec = spec
	f.existingAgent = &model.Agent{ID: "AG1", AliasID: "AL1", Name: spec.Name, Instructions: spec.Instructions, BoundIndexID: spec.IndexID}
	a := *f.existingAgent
	return &a, nil
}

func (f *fakeKnowledge) DeleteAgent(ctx context.Context, name string) error {
	if err := f.enter("DeleteAgent"); err != nil {
		return err
	}
	f.mu.Lock()
	f.existingAgent = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeKnowledge) DeleteIndex(ctx context.Context, name string) error {
	if err := f.enter("DeleteIndex"); err != nil {
		return err
	}
	f.mu.Lock()
	f.existingIndex = nil
	f.mu.Unlock()
	return nil
}

// fakeObjects 内存对象存储，failKeys 中的键上传失败，flaky 中的键先失败指定次数。
type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string]string
	failKeys  map[string]bool
	flaky     map[string]int
	puts      map[string]int
	removeErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		objects:  make(map[string]string),
		failKeys: make(map[string]bool),
		flaky:    make(map[string]int),
		puts:     make(map[string]int),
	}
}

func (o *fakeObjects) PutObject(ctx context.Context, localPath, bucket, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.puts[key]++
	if o.flaky[key] > 0 {
		o.flaky[key]--
		return errors.New("slow down")
	}
	if o.failKeys[key] {
		return errors.New("access denied")
	}
	o.objects[bucket+"/"+key] = localPath
	return nil
}

func (o *fakeObjects) RemovePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.removeErr != nil {
		return 0, o.removeErr
	}
	n := 0
	for k := range o.objects {
		if strings.HasPrefix(k, bucket+"/"+prefix) {
			delete(o.objects, k)
			n++
		}
	}
	return n, nil
}

func (o *fakeObjects) Location(bucket, prefix string) string {
	return store.StorageURI(bucket, prefix)
}

func (o *fakeObjects) keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fakeSessionStore 内存会话存储。
type fakeSessionStore struct {
	mu      sync.Mutex
	snaps   map[string]*model.SessionSnapshot
	saves   int
	saveErr error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{snaps: make(map[string]*model.SessionSnapshot)}
}

func (s *fakeSessionStore) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snaps[snap.ID] = snap
	return nil
}

func (s *fakeSessionStore) Load(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[id], nil
}

func (s *fakeSessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, id)
	return nil
}

// writeDocs 在临时目录中创建文件，返回目录路径。
func writeDocs(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("content of "+name), 0o600))
	}
	return root
}

func testProvisionConfig() ProvisionConfig {
	return ProvisionConfig{
		Staging: StagerConfig{
			Bucket:      "docs",
			Prefix:      "enterprise_documents/",
			MinUploaded: 1,
			Concurrency: 2,
		},
		IndexName:        "enterprise-document-kb",
		IndexDescription: "internal documents",
		AgentName:        "enterprise_document_assistant",
		ModelID:          "us.amazon.nova-pro-v1:0",
		Sync: resilience.PollConfig{
			Timeout:         200 * time.Millisecond,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

// statGroup 取 DocQAMetrics.Stats 中的一组计数。
func statGroup(m *metrics.DocQAMetrics, group string) map[string]interface{} {
	g, _ := m.Stats()[group].(map[string]interface{})
	return g
}

func newTestProvisioner(kb *fakeKnowledge, objects *fakeObjects) *Provisioner {
	return NewProvisioner(kb, objects, testProvisionConfig(), metrics.New("test"))
}
