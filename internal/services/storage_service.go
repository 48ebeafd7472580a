// internal/services/storage_service.go
package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/escrowflow-backend/internal/apperrors"
	"github.com/javajoker/escrowflow-backend/internal/config"
	"github.com/javajoker/escrowflow-backend/internal/models"
	"github.com/javajoker/escrowflow-backend/internal/utils"
)

// Document categories accepted by the upload endpoint.
const (
	DocCategoryProject     = "project"
	DocCategoryDeliverable = "deliverable"
	DocCategoryRework      = "rework"
)

type StorageService struct {
	db       *gorm.DB
	s3Client *s3.S3
	config   *config.Config
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

func NewStorageService(db *gorm.DB, config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// No credentials means local development; uploads are rejected.
		return &StorageService{db: db, config: config}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		db:       db,
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// UploadDocument stores a file on S3 and records a Document row against the
// project (and optionally one of its milestones).
func (s *StorageService) UploadDocument(actorID uuid.UUID, projectID uuid.UUID, milestoneID *uuid.UUID, category string, file multipart.File, header *multipart.FileHeader) (*models.Document, error) {
	options := s.optionsForCategory(category)

	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, apperrors.Validation(fmt.Sprintf("file exceeds the %d byte limit", options.MaxSize))
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowed := false
	for _, t := range options.AllowedTypes {
		if ext == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperrors.Validation(fmt.Sprintf("file type %s is not allowed", ext))
	}

	var project models.Project
	if err := s.db.Preload("Members").First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("project")
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.Member(actorID) == nil {
		return nil, apperrors.Authorization("not a member of this project")
	}
	if milestoneID != nil {
		var milestone models.Milestone
		if err := s.db.First(&milestone, "id = ? AND project_id = ?", milestoneID, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("milestone")
			}
			return nil, fmt.Errorf("failed to load milestone: %w", err)
		}
	}

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	key := s.generateFileName(header.Filename, options.Folder)
	url, err := s.putObject(fileBytes, key, header.Header.Get("Content-Type"))
	if err != nil {
		return nil, apperrors.External("file upload failed", err)
	}

	document := &models.Document{
		ProjectID:   &project.ID,
		MilestoneID: milestoneID,
		Category:    category,
		FileName:    header.Filename,
		StorageKey:  key,
		URL:         url,
		MimeType:    header.Header.Get("Content-Type"),
		Size:        int64(len(fileBytes)),
		Checksum:    utils.Checksum(fileBytes),
		UploadedBy:  actorID,
	}
	if err := s.db.Create(document).Error; err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	return document, nil
}

func (s *StorageService) putObject(fileBytes []byte, key, contentType string) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("object storage is not configured")
	}

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.objectURL(key), nil
}

// DownloadURL issues a presigned link for a stored document.
func (s *StorageService) DownloadURL(actorID, documentID uuid.UUID, expiration time.Duration) (string, error) {
	var document models.Document
	if err := s.db.First(&document, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NotFound("document")
		}
		return "", fmt.Errorf("failed to load document: %w", err)
	}

	if document.ProjectID != nil {
		var project models.Project
		if err := s.db.Preload("Members").First(&project, "id = ?", document.ProjectID).Error; err != nil {
			return "", fmt.Errorf("failed to load project: %w", err)
		}
		if project.Member(actorID) == nil {
			return "", apperrors.Authorization("not a member of this project")
		}
	}

	if s.s3Client == nil {
		return "", apperrors.External("object storage is not configured", nil)
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(document.StorageKey),
	})
	url, err := req.Presign(expiration)
	if err != nil {
		return "", apperrors.External("failed to generate download link", err)
	}
	return url, nil
}

// DeleteDocument removes the object and its row. Only the uploader may
// delete.
func (s *StorageService) DeleteDocument(actorID, documentID uuid.UUID) error {
	var document models.Document
	if err := s.db.First(&document, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("document")
		}
		return fmt.Errorf("failed to load document: %w", err)
	}
	if document.UploadedBy != actorID {
		return apperrors.Authorization("only the uploader may delete a document")
	}

	if s.s3Client != nil {
		_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
			Bucket: aws.String(s.config.AWS.S3Bucket),
			Key:    aws.String(document.StorageKey),
		})
		if err != nil {
			return apperrors.External("failed to delete stored file", err)
		}
	}

	if err := s.db.Delete(&document).Error; err != nil {
		return fmt.Errorf("failed to delete document row: %w", err)
	}
	return nil
}

func (s *StorageService) optionsForCategory(category string) UploadOptions {
	switch category {
	case DocCategoryDeliverable:
		return UploadOptions{
			Folder:       "deliverables",
			MaxSize:      50 * 1024 * 1024, // 50MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".zip", ".mp4"},
		}
	case DocCategoryRework:
		return UploadOptions{
			Folder:       "rework",
			MaxSize:      20 * 1024 * 1024, // 20MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".pdf", ".zip"},
		}
	default:
		return UploadOptions{
			Folder:       "projects",
			MaxSize:      10 * 1024 * 1024, // 10MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".pdf", ".doc", ".docx", ".xls", ".xlsx"},
		}
	}
}

func (s *StorageService) generateFileName(originalName, folder string) string {
	id := uuid.New()
	ext := filepath.Ext(originalName)
	timestamp := time.Now().Format("20060102")
	filename := fmt.Sprintf("%s_%s%s", timestamp, id.String()[:8], ext)

	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}
	return filename
}

func (s *StorageService) objectURL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}
