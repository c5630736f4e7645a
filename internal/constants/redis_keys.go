package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ReviewModulePrefix 审核模块
	ReviewModulePrefix = "review"
	// ApplicationModulePrefix 申请模块
	ApplicationModulePrefix = "application"
	// FileModulePrefix 文件模块
	FileModulePrefix = "file"

	// EntityList 列表实体
	EntityList = "list"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityMD5ToResume MD5到简历ID的映射实体
	EntityMD5ToResume = "md5_to_resume"

	// KeyReviewApplicationList 审核端申请列表缓存 (STRING, JSON)
	// 格式: app:review:list:applications
	KeyReviewApplicationList = AppPrefix + ":" + ReviewModulePrefix + ":" + EntityList + ":applications"

	// KeyRescoreLock 重新评分分布式锁 (STRING)
	// 格式: app:application:lock:rescore:{applicationID}
	KeyRescoreLock = AppPrefix + ":" + ApplicationModulePrefix + ":" + EntityLock + ":rescore:%s"

	// KeyFileMD5Set 简历文件MD5集合，用于快速去重 (SET)
	// 格式: app:file:dedup_set
	KeyFileMD5Set = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet

	// KeyFileMD5ToResumeID MD5到ResumeID的映射 (STRING)
	// 格式: app:file:md5_to_resume:{md5}
	KeyFileMD5ToResumeID = AppPrefix + ":" + FileModulePrefix + ":" + EntityMD5ToResume + ":%s"
)
