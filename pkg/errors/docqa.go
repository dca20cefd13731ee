package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 文档问答核心错误码: 21 (业务服务范围 20-79)

var (
	// 请求参数错误 (类别 01)
	ErrInvalidQuestion  = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 1), http.StatusBadRequest, codes.InvalidArgument, "Question must not be empty", "问题不能为空"))
	ErrInvalidDirectory = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 2), http.StatusBadRequest, codes.InvalidArgument, "Invalid document directory", "文档目录无效"))

	// 资源错误 (类别 04)
	ErrSessionNotFound = Register(New(MakeCode(ServiceDocQA, CategoryResource, 1), http.StatusNotFound, codes.NotFound, "Session not found", "会话不存在"))
	ErrNoDocuments     = Register(New(MakeCode(ServiceDocQA, CategoryResource, 2), http.StatusUnprocessableEntity, codes.FailedPrecondition, "No documents were staged", "没有文档上传成功"))

	// 状态冲突 (类别 05)
	ErrNotReady               = Register(New(MakeCode(ServiceDocQA, CategoryConflict, 1), http.StatusConflict, codes.FailedPrecondition, "Knowledge base is not ready", "知识库尚未就绪"))
	ErrProvisioningInProgress = Register(New(MakeCode(ServiceDocQA, CategoryConflict, 2), http.StatusConflict, codes.Aborted, "Provisioning is in progress", "部署正在进行中"))

	// 内部错误 (类别 07)
	ErrProvisioningFailed = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 1), http.StatusInternalServerError, codes.Internal, "Provisioning failed", "部署失败"))
	ErrPartialUpload      = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 2), http.StatusInternalServerError, codes.Internal, "Some documents failed to upload", "部分文档上传失败"))
	ErrTeardownPartial    = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 3), http.StatusInternalServerError, codes.Internal, "Some resources failed to delete", "部分资源删除失败"))

	// 缓存错误 (类别 09)
	ErrSessionStore = Register(New(MakeCode(ServiceDocQA, CategoryCache, 1), http.StatusInternalServerError, codes.Internal, "Session store unavailable", "会话存储不可用"))

	// 远程服务错误 (类别 10)
	ErrServiceFailure = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 1), http.StatusBadGateway, codes.Unavailable, "Retrieval service call failed", "检索服务调用失败"))

	// 超时错误 (类别 11)
	ErrSyncTimeout = Register(New(MakeCode(ServiceDocQA, CategoryTimeout, 1), http.StatusGatewayTimeout, codes.DeadlineExceeded, "Index synchronization did not complete in time", "知识库同步超时"))

	// 对象存储错误
	ErrUploadFailed = Register(New(MakeCode(ServiceStorage, CategoryNetwork, 1), http.StatusBadGateway, codes.Unavailable, "Object upload failed", "对象上传失败"))
)
