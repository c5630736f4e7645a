package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"job-portal-go/internal/config"
	"job-portal-go/internal/constants"
	"job-portal-go/internal/storage/models"
	"job-portal-go/internal/tracing"
	"job-portal-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("job-portal-go/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	// 为各种操作类型注册回调
	cb := db.Callback()

	// 为所有CRUD操作注册Before和After回调
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		// 从DB获取上下文
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		// 获取操作表名，如果为空则使用"unknown"
		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		// 创建一个新的span
		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		// 获取SQL语句（如果有），截断后再写入span属性
		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.SafeSQL(sqlStatement)),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		// 从DB上下文中获取span
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement.RowsAffected > 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		} else {
			span.SetAttributes(attribute.Int64("db.rows_affected", 0))
		}

		// 记录错误（如果有），但正确处理ErrRecordNotFound
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// WithDisableErrSkip 设置是否禁用错误跳过
func (p *GormTracingPlugin) WithDisableErrSkip(disable bool) *GormTracingPlugin {
	p.disableErrSkip = disable
	return p
}

// Database 关系数据库接口
type Database interface {
	// DB 返回GORM数据库连接实例
	DB() *gorm.DB

	// Close 关闭数据库连接
	Close() error
}

// 确保MySQL实现了Database接口
var _ Database = (*MySQL)(nil)

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	// 配置GORM日志级别
	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	// GORM配置增强
	// TranslateError 把驱动的唯一键冲突翻译为 gorm.ErrDuplicatedKey，
	// CreateApplication 依赖它作为重复申请的权威信号
	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		TranslateError:                           true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	// 设置连接池参数
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database).WithDisableErrSkip(true)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	// 使用 GORM 的 AutoMigrate 功能自动迁移表结构
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	// 保存当前的日志级别
	currentLogger := m.db.Logger

	// 创建一个静默的logger以关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// 创建一个使用静默日志记录器的DB会话
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	// 列出所有需要迁移的模型
	err := silentDB.AutoMigrate(
		&models.Candidate{},
		&models.Job{},
		&models.Resume{},
		&models.Application{},
		&models.OutboxMessage{},
	)

	// 恢复原来的日志记录器
	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	log.Println("GORM数据库结构迁移成功")
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// FindLatestResumeByCandidate 查找候选人最新上传的简历
// 未找到时返回 (nil, nil)，调用方据此判定"无简历"
func (m *MySQL) FindLatestResumeByCandidate(ctx context.Context, candidateID string) (*models.Resume, error) {
	var resume models.Resume
	err := m.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("uploaded_at DESC").
		First(&resume).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询候选人简历失败: %w", err)
	}
	return &resume, nil
}

// CreateResume 插入一条简历文件记录
func (m *MySQL) CreateResume(ctx context.Context, resume *models.Resume) error {
	return m.db.WithContext(ctx).Create(resume).Error
}

// GetApplicationByID 通过ApplicationID获取申请记录
func (m *MySQL) GetApplicationByID(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := m.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询申请记录失败: %w", err)
	}
	return &app, nil
}

// CreateApplication 插入申请记录，同事务写入发件箱通知
// (job_id, candidate_id) 唯一索引冲突原样返回 gorm.ErrDuplicatedKey
func (m *MySQL) CreateApplication(ctx context.Context, app *models.Application, outboxMsg *models.OutboxMessage) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.CreateApplication",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("db.sql.table", "applications"),
		attribute.String("application.id", app.ApplicationID),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(app).Error; err != nil {
			return err
		}
		if outboxMsg != nil {
			if err := tx.Create(outboxMsg).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 唯一索引冲突是重复申请的正常业务路径
			span.SetAttributes(attribute.String("error.type", "duplicated_key"))
			span.SetStatus(codes.Ok, "duplicate application")
			return err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateApplicationStatus 更新申请状态
func (m *MySQL) UpdateApplicationStatus(ctx context.Context, applicationID string, status string) error {
	result := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("更新申请状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateApplicationScoring 回写评分结果
// 四个字段在单条Updates中一并更新，重复评分时整体覆盖（last write wins）
func (m *MySQL) UpdateApplicationScoring(ctx context.Context, applicationID string, score float64, category string, confidence float64, calculatedAt time.Time) error {
	updates := map[string]interface{}{
		"ats_score":          score,
		"predicted_category": category,
		"confidence_score":   confidence,
		"ats_calculated_at":  calculatedAt,
	}
	result := m.db.WithContext(ctx).Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("回写评分结果失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateOutboxMessage 单独写入一条发件箱消息
func (m *MySQL) CreateOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error {
	return m.db.WithContext(ctx).Create(msg).Error
}

// GetJobByID 通过 JobID 获取 Job 记录，未找到时返回 (nil, nil)
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	return &job, nil
}

// ListActiveJobs 列出所有开放中的岗位
func (m *MySQL) ListActiveJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := m.db.WithContext(ctx).
		Where("status = ?", constants.JobStatusActive).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位列表失败: %w", err)
	}
	return jobs, nil
}

// ListApplicationsByCandidate 查询候选人的全部申请，含岗位信息与评分字段
func (m *MySQL) ListApplicationsByCandidate(ctx context.Context, candidateID string) ([]types.MyApplicationItem, error) {
	query := `
		SELECT
			a.application_id, a.job_id, j.job_title, j.company,
			a.status, a.applied_at,
			a.ats_score, a.predicted_category, a.confidence_score, a.ats_calculated_at
		FROM applications a
		JOIN jobs j ON j.job_id = a.job_id
		WHERE a.candidate_id = ?
		ORDER BY a.applied_at DESC`

	var items []types.MyApplicationItem
	rows, err := m.db.WithContext(ctx).Raw(query, candidateID).Rows()
	if err != nil {
		return nil, fmt.Errorf("查询我的申请列表失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item types.MyApplicationItem
		if err := rows.Scan(
			&item.ApplicationID, &item.JobID, &item.JobTitle, &item.Company,
			&item.Status, &item.AppliedAt,
			&item.ATSScore, &item.PredictedCategory, &item.ConfidenceScore, &item.ATSCalculatedAt,
		); err != nil {
			return nil, fmt.Errorf("扫描申请记录失败: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历申请记录失败: %w", err)
	}
	return items, nil
}

// ListApplicationsForReviewer 审核端聚合查询
// 一次查询联结岗位、候选人和最新简历，避免N+1
func (m *MySQL) ListApplicationsForReviewer(ctx context.Context) ([]types.ApplicationDetail, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.ListApplicationsForReviewer",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("db.operation", "SELECT"),
	)

	query := `
		SELECT
			a.application_id, a.status, a.cover_letter, a.applied_at,
			j.job_id, j.job_title, j.company,
			c.candidate_id, c.name, c.email,
			r.resume_id, r.original_filename, r.file_path_oss,
			a.ats_score, a.predicted_category, a.confidence_score, a.ats_calculated_at
		FROM applications a
		JOIN jobs j ON j.job_id = a.job_id
		JOIN candidates c ON c.candidate_id = a.candidate_id
		LEFT JOIN (
			SELECT r1.*
			FROM resumes r1
			JOIN (
				SELECT candidate_id, MAX(uploaded_at) AS max_uploaded_at
				FROM resumes
				GROUP BY candidate_id
			) r2 ON r2.candidate_id = r1.candidate_id AND r2.max_uploaded_at = r1.uploaded_at
		) r ON r.candidate_id = a.candidate_id
		ORDER BY a.applied_at DESC`

	rows, err := m.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("查询审核端申请列表失败: %w", err)
	}
	defer rows.Close()

	var details []types.ApplicationDetail
	for rows.Next() {
		var d types.ApplicationDetail
		var resumeID, resumeFilename, resumePath *string
		if err := rows.Scan(
			&d.ApplicationID, &d.Status, &d.CoverLetter, &d.AppliedAt,
			&d.JobID, &d.JobTitle, &d.Company,
			&d.CandidateID, &d.CandidateName, &d.CandidateEmail,
			&resumeID, &resumeFilename, &resumePath,
			&d.ATSScore, &d.PredictedCategory, &d.ConfidenceScore, &d.ATSCalculatedAt,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("扫描审核端申请记录失败: %w", err)
		}
		if resumeID != nil {
			d.ResumeID = *resumeID
		}
		if resumeFilename != nil {
			d.ResumeFilename = *resumeFilename
		}
		if resumePath != nil {
			d.ResumePathOSS = *resumePath
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("遍历审核端申请记录失败: %w", err)
	}

	span.SetAttributes(attribute.Int("db.rows_returned", len(details)))
	span.SetStatus(codes.Ok, "")
	return details, nil
}
