package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"classdesk/internal/repository"
	"classdesk/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type uploadRepo struct {
	records map[string]*repository.FileRecord

	createCalls    int
	progressValues []int
	finalizeCalls  int
	lastSuccess    bool
	lastErrorMsg   *string
}

func newUploadRepo() *uploadRepo {
	return &uploadRepo{records: map[string]*repository.FileRecord{}}
}

func (m *uploadRepo) Create(ctx context.Context, record *repository.FileRecord) (*repository.FileRecord, error) {
	m.createCalls++
	clone := *record
	m.records[record.ID] = &clone
	return &clone, nil
}

func (m *uploadRepo) GetByID(ctx context.Context, id string) (*repository.FileRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (m *uploadRepo) ListByIDs(ctx context.Context, ids []string) ([]repository.FileRecord, error) {
	return nil, nil
}

func (m *uploadRepo) List(ctx context.Context, params repository.ListFilesParams) ([]repository.FileRecord, error) {
	return nil, nil
}

func (m *uploadRepo) ListByOwner(ctx context.Context, owner repository.FileOwner) ([]repository.FileRecord, error) {
	return nil, nil
}

func (m *uploadRepo) SetProgress(ctx context.Context, id string, progress int) (*repository.FileRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.progressValues = append(m.progressValues, progress)
	if record.Status != repository.FileStatusCompleted {
		record.Progress = progress
		record.Status = repository.FileStatusUploading
	}
	clone := *record
	return &clone, nil
}

func (m *uploadRepo) Finalize(ctx context.Context, id string, success bool, errorMessage *string) (*repository.FileRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.finalizeCalls++
	m.lastSuccess = success
	m.lastErrorMsg = errorMessage
	if success {
		record.Status = repository.FileStatusCompleted
		record.Progress = 100
		record.ErrorMessage = nil
	} else {
		record.Status = repository.FileStatusFailed
		record.Progress = 0
		record.ErrorMessage = errorMessage
		record.RetryCount++
	}
	clone := *record
	return &clone, nil
}

func (m *uploadRepo) LinkThumbnail(ctx context.Context, id, thumbnailID string) error {
	record, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	record.ThumbnailID = &thumbnailID
	return nil
}

func (m *uploadRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

type uploadStore struct {
	putCalls    int
	lastKey     string
	lastSize    int64
	lastContent []byte
	putErr      error

	signedCalls int
	lastAction  storage.SignedAction
}

func (m *uploadStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.Location, error) {
	if m.putErr != nil {
		return storage.Location{}, m.putErr
	}
	data, _ := io.ReadAll(r)
	m.putCalls++
	m.lastKey = key
	m.lastSize = size
	m.lastContent = data
	return storage.Location{Path: key}, nil
}

func (m *uploadStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.lastContent)), nil
}

func (m *uploadStore) SignedURL(ctx context.Context, key string, action storage.SignedAction, ttl time.Duration, contentType string) (string, error) {
	m.signedCalls++
	m.lastAction = action
	return "https://signed.example/" + key, nil
}

func (m *uploadStore) Delete(ctx context.Context, key string) error {
	return nil
}

func (m *uploadStore) Exists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

type recordingThumbnailer struct {
	done chan *repository.FileRecord
}

func (m *recordingThumbnailer) GenerateFor(ctx context.Context, record *repository.FileRecord) {
	m.done <- record
}

// fileOwner 是上传测试里默认的文件属主。
var fileOwner = Actor{ID: "user-1"}

func newUploadServiceForTest(repo *uploadRepo, store *uploadStore, thumbnailer Thumbnailer) *UploadService {
	return NewUploadService(repo, store, thumbnailer, testLogger(), UploadConfig{
		PublicBaseURL: "http://localhost:8080",
		SlotTTL:       15 * time.Minute,
		SignedURLTTL:  5 * time.Minute,
	})
}

func TestUploadService_RequestSlot(t *testing.T) {
	repo := newUploadRepo()
	svc := newUploadServiceForTest(repo, &uploadStore{}, nil)

	before := time.Now().UTC()
	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "report.pdf",
		MimeType:    "application/pdf",
		SizeBytes:   1024,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	if slot.FileID == "" || slot.SessionID == "" {
		t.Fatalf("expected ids to be assigned, got %+v", slot)
	}
	if !strings.Contains(slot.UploadURL, slot.FileID) || !strings.Contains(slot.UploadURL, "session="+slot.SessionID) {
		t.Fatalf("upload url missing id or session: %s", slot.UploadURL)
	}

	ttl := slot.ExpiresAt.Sub(before)
	if ttl < 14*time.Minute || ttl > 16*time.Minute {
		t.Fatalf("expected roughly 15 minute slot, got %s", ttl)
	}

	record := repo.records[slot.FileID]
	if record == nil {
		t.Fatal("expected record to be created")
	}
	if record.Status != repository.FileStatusPending {
		t.Fatalf("expected pending status, got %s", record.Status)
	}
	if record.OwnerUserID != "user-1" {
		t.Fatalf("unexpected owner: %s", record.OwnerUserID)
	}
	if !strings.HasSuffix(record.StoragePath, ".pdf") {
		t.Fatalf("expected storage path to keep extension, got %s", record.StoragePath)
	}
}

func TestUploadService_RequestSlot_ValidationFailures(t *testing.T) {
	svc := newUploadServiceForTest(newUploadRepo(), &uploadStore{}, nil)
	assignmentID := "a-1"
	folderID := "f-1"

	cases := []struct {
		name  string
		input SlotInput
	}{
		{"empty name", SlotInput{MimeType: "text/plain", SizeBytes: 1}},
		{"empty mime", SlotInput{DisplayName: "a.txt", SizeBytes: 1}},
		{"zero size", SlotInput{DisplayName: "a.txt", MimeType: "text/plain"}},
		{"negative size", SlotInput{DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: -5}},
		{"png with jpeg mime", SlotInput{DisplayName: "photo.png", MimeType: "image/jpeg", SizeBytes: 1}},
		{"jpg with pdf mime", SlotInput{DisplayName: "photo.jpg", MimeType: "application/pdf", SizeBytes: 1}},
		{"two attach targets", SlotInput{
			DisplayName:  "a.txt",
			MimeType:     "text/plain",
			SizeBytes:    1,
			AssignmentID: &assignmentID,
			FolderID:     &folderID,
		}},
	}

	for _, tc := range cases {
		if _, err := svc.RequestSlot(context.Background(), tc.input, "user-1"); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestUploadService_RequestSlot_AcceptsMatchingImage(t *testing.T) {
	svc := newUploadServiceForTest(newUploadRepo(), &uploadStore{}, nil)

	// 扩展名在允许表内且 MIME 匹配；带参数的 MIME 也要被接受
	if _, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "photo.JPG",
		MimeType:    "image/jpeg; charset=binary",
		SizeBytes:   10,
	}, "user-1"); err != nil {
		t.Fatalf("expected matching image to pass, got %v", err)
	}
}

func TestUploadService_RequestSlots_AllOrNothing(t *testing.T) {
	repo := newUploadRepo()
	svc := newUploadServiceForTest(repo, &uploadStore{}, nil)

	inputs := []SlotInput{
		{DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1},
		{DisplayName: "b.txt", MimeType: "text/plain", SizeBytes: 1},
		{DisplayName: "bad.png", MimeType: "image/jpeg", SizeBytes: 1},
	}

	if _, err := svc.RequestSlots(context.Background(), inputs, "user-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.createCalls != 0 {
		t.Fatalf("expected no records created for rejected batch, got %d", repo.createCalls)
	}

	slots, err := svc.RequestSlots(context.Background(), inputs[:2], "user-1")
	if err != nil {
		t.Fatalf("request valid batch: %v", err)
	}
	if len(slots) != 2 || repo.createCalls != 2 {
		t.Fatalf("expected 2 slots and 2 creates, got %d slots %d creates", len(slots), repo.createCalls)
	}
}

func TestUploadService_ReportProgress_Clamps(t *testing.T) {
	repo := newUploadRepo()
	svc := newUploadServiceForTest(repo, &uploadStore{}, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	for _, tc := range []struct{ in, want int }{{-10, 0}, {55, 55}, {150, 100}} {
		record, err := svc.ReportProgress(context.Background(), fileOwner, slot.FileID, tc.in)
		if err != nil {
			t.Fatalf("report progress %d: %v", tc.in, err)
		}
		if record.Progress != tc.want {
			t.Fatalf("progress %d: expected clamp to %d, got %d", tc.in, tc.want, record.Progress)
		}
		if record.Status != repository.FileStatusUploading {
			t.Fatalf("expected uploading status, got %s", record.Status)
		}
	}
}

func TestUploadService_ReportProgress_UnknownFile(t *testing.T) {
	svc := newUploadServiceForTest(newUploadRepo(), &uploadStore{}, nil)

	if _, err := svc.ReportProgress(context.Background(), fileOwner, "missing", 50); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUploadService_Confirm_SuccessTriggersThumbnail(t *testing.T) {
	repo := newUploadRepo()
	thumbnailer := &recordingThumbnailer{done: make(chan *repository.FileRecord, 1)}
	svc := newUploadServiceForTest(repo, &uploadStore{}, thumbnailer)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "photo.png", MimeType: "image/png", SizeBytes: 10,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	record, err := svc.Confirm(context.Background(), fileOwner, slot.FileID, true, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if record.Status != repository.FileStatusCompleted || record.Progress != 100 {
		t.Fatalf("unexpected record after confirm: status=%s progress=%d", record.Status, record.Progress)
	}
	if repo.lastErrorMsg != nil {
		t.Fatalf("expected nil error message on success, got %q", *repo.lastErrorMsg)
	}

	select {
	case generated := <-thumbnailer.done:
		if generated.ID != slot.FileID {
			t.Fatalf("thumbnailer got wrong record: %s", generated.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected thumbnailer to be invoked")
	}
}

func TestUploadService_Confirm_FailureCountsRetry(t *testing.T) {
	repo := newUploadRepo()
	thumbnailer := &recordingThumbnailer{done: make(chan *repository.FileRecord, 1)}
	svc := newUploadServiceForTest(repo, &uploadStore{}, thumbnailer)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	record, err := svc.Confirm(context.Background(), fileOwner, slot.FileID, false, "network reset")
	if err != nil {
		t.Fatalf("confirm failure: %v", err)
	}
	if record.Status != repository.FileStatusFailed {
		t.Fatalf("expected failed status, got %s", record.Status)
	}
	if record.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", record.RetryCount)
	}
	if record.ErrorMessage == nil || *record.ErrorMessage != "network reset" {
		t.Fatalf("expected error message to be stored, got %v", record.ErrorMessage)
	}

	// 后写覆盖先写：同一文件再次确认为成功
	record, err = svc.Confirm(context.Background(), fileOwner, slot.FileID, true, "")
	if err != nil {
		t.Fatalf("confirm retry: %v", err)
	}
	if record.Status != repository.FileStatusCompleted || record.ErrorMessage != nil {
		t.Fatalf("expected completed record after retry, got %+v", record)
	}

	select {
	case <-thumbnailer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected thumbnailer after successful retry")
	}
}

func TestUploadService_ReceiveContent(t *testing.T) {
	repo := newUploadRepo()
	store := &uploadStore{}
	svc := newUploadServiceForTest(repo, store, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 11,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	if err := svc.ReceiveContent(context.Background(), slot.FileID, "wrong-session", strings.NewReader("hello"), 5); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for session mismatch, got %v", err)
	}
	if store.putCalls != 0 {
		t.Fatal("store must not be touched on session mismatch")
	}

	if err := svc.ReceiveContent(context.Background(), slot.FileID, slot.SessionID, strings.NewReader("hello world"), 11); err != nil {
		t.Fatalf("receive content: %v", err)
	}
	if store.putCalls != 1 || string(store.lastContent) != "hello world" {
		t.Fatalf("expected bytes to reach store, calls=%d content=%q", store.putCalls, store.lastContent)
	}

	record := repo.records[slot.FileID]
	if record.Progress != 100 {
		t.Fatalf("expected progress 100 after content receive, got %d", record.Progress)
	}
}

func TestUploadService_ReceiveContent_ExpiredSlot(t *testing.T) {
	repo := newUploadRepo()
	store := &uploadStore{}
	svc := newUploadServiceForTest(repo, store, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	repo.records[slot.FileID].UploadExpiry = &past

	if err := svc.ReceiveContent(context.Background(), slot.FileID, slot.SessionID, strings.NewReader("x"), 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for expired slot, got %v", err)
	}
	if store.putCalls != 0 {
		t.Fatal("store must not be touched for expired slot")
	}
}

func TestUploadService_ReceiveContent_AlreadyCompleted(t *testing.T) {
	repo := newUploadRepo()
	svc := newUploadServiceForTest(repo, &uploadStore{}, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}
	repo.records[slot.FileID].Status = repository.FileStatusCompleted

	if err := svc.ReceiveContent(context.Background(), slot.FileID, slot.SessionID, strings.NewReader("x"), 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for completed upload, got %v", err)
	}
}

func TestUploadService_ReceiveContent_RetryAfterFailure(t *testing.T) {
	repo := newUploadRepo()
	store := &uploadStore{}
	svc := newUploadServiceForTest(repo, store, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 5,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	record, err := svc.Confirm(context.Background(), fileOwner, slot.FileID, false, "network reset")
	if err != nil {
		t.Fatalf("confirm failure: %v", err)
	}
	if record.Status != repository.FileStatusFailed || record.RetryCount != 1 {
		t.Fatalf("expected failed record with one retry, got %+v", record)
	}

	// 槽位仍在有效期内，失败的上传可以直接重新推送字节
	if err := svc.ReceiveContent(context.Background(), slot.FileID, slot.SessionID, strings.NewReader("again"), 5); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if store.putCalls != 1 || string(store.lastContent) != "again" {
		t.Fatalf("expected retried bytes in store, calls=%d content=%q", store.putCalls, store.lastContent)
	}

	retried := repo.records[slot.FileID]
	if retried.Status != repository.FileStatusUploading {
		t.Fatalf("expected failed record back to uploading, got %s", retried.Status)
	}
	if retried.Progress != 100 {
		t.Fatalf("expected progress 100 after retried upload, got %d", retried.Progress)
	}
}

func TestUploadService_ReportProgress_RetriesFailedRecord(t *testing.T) {
	repo := newUploadRepo()
	svc := newUploadServiceForTest(repo, &uploadStore{}, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), fileOwner, slot.FileID, false, "timeout"); err != nil {
		t.Fatalf("confirm failure: %v", err)
	}

	record, err := svc.ReportProgress(context.Background(), fileOwner, slot.FileID, 30)
	if err != nil {
		t.Fatalf("report progress after failure: %v", err)
	}
	if record.Status != repository.FileStatusUploading || record.Progress != 30 {
		t.Fatalf("expected failed record retried to uploading at 30, got status=%s progress=%d", record.Status, record.Progress)
	}
}

func TestUploadService_DownloadURL(t *testing.T) {
	repo := newUploadRepo()
	store := &uploadStore{}
	svc := newUploadServiceForTest(repo, store, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	if _, err := svc.DownloadURL(context.Background(), fileOwner, slot.FileID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error before completion, got %v", err)
	}

	if _, err := svc.Confirm(context.Background(), fileOwner, slot.FileID, true, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	url, err := svc.DownloadURL(context.Background(), fileOwner, slot.FileID)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if url == "" || store.lastAction != storage.SignedActionRead {
		t.Fatalf("expected signed read url, got %q action %s", url, store.lastAction)
	}
}

func TestUploadService_OwnerScoping(t *testing.T) {
	repo := newUploadRepo()
	svc := newUploadServiceForTest(repo, &uploadStore{}, nil)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "a.txt", MimeType: "text/plain", SizeBytes: 1,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	stranger := Actor{ID: "user-2"}

	// 元数据里带着会话 id，读到它就能劫持上传槽位
	if _, err := svc.GetFile(context.Background(), stranger, slot.FileID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign metadata read, got %v", err)
	}
	if _, err := svc.ReportProgress(context.Background(), stranger, slot.FileID, 50); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign progress report, got %v", err)
	}
	if _, err := svc.Confirm(context.Background(), stranger, slot.FileID, true, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign confirm, got %v", err)
	}
	if repo.finalizeCalls != 0 || len(repo.progressValues) != 0 {
		t.Fatalf("expected no writes by stranger, finalize=%d progress=%v", repo.finalizeCalls, repo.progressValues)
	}

	record, err := svc.GetFile(context.Background(), Actor{ID: "teacher-1", Teacher: true}, slot.FileID)
	if err != nil {
		t.Fatalf("teacher metadata read: %v", err)
	}
	if record.ID != slot.FileID {
		t.Fatalf("unexpected record: %+v", record)
	}

	if _, err := svc.GetFile(context.Background(), fileOwner, slot.FileID); err != nil {
		t.Fatalf("owner metadata read: %v", err)
	}
}

func TestUploadService_DownloadURL_SharedAttachment(t *testing.T) {
	repo := newUploadRepo()
	svc := newUploadServiceForTest(repo, &uploadStore{}, nil)

	assignmentID := "asg-1"
	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "brief.pdf", MimeType: "application/pdf", SizeBytes: 10,
		AssignmentID: &assignmentID,
	}, "teacher-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}
	repo.records[slot.FileID].Status = repository.FileStatusCompleted

	// 作业附件是班级共享材料，学生也能拿到下载地址
	if _, err := svc.DownloadURL(context.Background(), Actor{ID: "student-1"}, slot.FileID); err != nil {
		t.Fatalf("student download of assignment attachment: %v", err)
	}

	submissionID := "sub-1"
	slot, err = svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "answer.txt", MimeType: "text/plain", SizeBytes: 10,
		SubmissionID: &submissionID,
	}, "student-1")
	if err != nil {
		t.Fatalf("request submission slot: %v", err)
	}
	repo.records[slot.FileID].Status = repository.FileStatusCompleted

	// 提交附件只属于作者与教师
	if _, err := svc.DownloadURL(context.Background(), Actor{ID: "student-2"}, slot.FileID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for foreign submission download, got %v", err)
	}
	if _, err := svc.DownloadURL(context.Background(), Actor{ID: "teacher-1", Teacher: true}, slot.FileID); err != nil {
		t.Fatalf("teacher download of submission attachment: %v", err)
	}
}

func TestUploadService_Confirm_SecondSuccessKeepsThumbnail(t *testing.T) {
	repo := newUploadRepo()
	thumbnailer := &recordingThumbnailer{done: make(chan *repository.FileRecord, 1)}
	svc := newUploadServiceForTest(repo, &uploadStore{}, thumbnailer)

	slot, err := svc.RequestSlot(context.Background(), SlotInput{
		DisplayName: "photo.png", MimeType: "image/png", SizeBytes: 10,
	}, "user-1")
	if err != nil {
		t.Fatalf("request slot: %v", err)
	}

	if _, err := svc.Confirm(context.Background(), fileOwner, slot.FileID, true, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	select {
	case <-thumbnailer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected thumbnailer on first confirm")
	}

	if err := repo.LinkThumbnail(context.Background(), slot.FileID, "thumb-1"); err != nil {
		t.Fatalf("link thumbnail: %v", err)
	}

	// 重复确认不能再生成一份缩略图，否则旧的行和 blob 成孤儿
	if _, err := svc.Confirm(context.Background(), fileOwner, slot.FileID, true, ""); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	select {
	case <-thumbnailer.done:
		t.Fatal("expected no thumbnail generation on repeated confirm")
	case <-time.After(100 * time.Millisecond):
	}
}
