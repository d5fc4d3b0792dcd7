package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/config"
)

// CognitoAPI 适配器用到的用户池管理员接口子集
type CognitoAPI interface {
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminDeleteUser(ctx context.Context, in *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
	AdminGetUser(ctx context.Context, in *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	AdminSetUserPassword(ctx context.Context, in *cip.AdminSetUserPasswordInput, optFns ...func(*cip.Options)) (*cip.AdminSetUserPasswordOutput, error)
}

// Cognito 基于 Cognito 用户池的 Directory 实现
type Cognito struct {
	api    CognitoAPI
	poolID string
	logger *zap.Logger
}

// NewCognito 通过默认凭证链创建用户池客户端
func NewCognito(ctx context.Context, cfg *config.IdentityConfig, logger *zap.Logger) (*Cognito, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}

	logger.Info("身份目录已配置",
		zap.String("region", cfg.Region),
		zap.String("user_pool_id", cfg.UserPoolID),
	)

	return NewCognitoWithClient(cip.NewFromConfig(awsCfg), cfg.UserPoolID, logger), nil
}

// NewCognitoWithClient 使用已有客户端构造（测试注入）
func NewCognitoWithClient(api CognitoAPI, poolID string, logger *zap.Logger) *Cognito {
	return &Cognito{api: api, poolID: poolID, logger: logger}
}

func (c *Cognito) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	out, err := c.api.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:        aws.String(c.poolID),
		Username:          aws.String(in.Email),
		TemporaryPassword: aws.String(in.TemporaryPassword),
		MessageAction:     types.MessageActionTypeSuppress,
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(in.Email)},
			{Name: aws.String("email_verified"), Value: aws.String("true")},
			{Name: aws.String("name"), Value: aws.String(in.Name)},
		},
	})
	if err != nil {
		return nil, classify("create-user", err)
	}

	u := &User{Username: in.Email, Email: in.Email, Name: in.Name}
	if out.User != nil {
		u.Username = aws.ToString(out.User.Username)
		u.Status = string(out.User.UserStatus)
		u.Enabled = out.User.Enabled
		u.CreatedAt = aws.ToTime(out.User.UserCreateDate)
	}
	return u, nil
}

func (c *Cognito) DeleteUser(ctx context.Context, username string) error {
	_, err := c.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(c.poolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return classify("delete-user", err)
	}
	return nil
}

func (c *Cognito) GetUser(ctx context.Context, username string) (*User, error) {
	out, err := c.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(c.poolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return nil, classify("get-user", err)
	}

	u := &User{
		Username:  aws.ToString(out.Username),
		Status:    string(out.UserStatus),
		Enabled:   out.Enabled,
		CreatedAt: aws.ToTime(out.UserCreateDate),
	}
	for _, attr := range out.UserAttributes {
		switch aws.ToString(attr.Name) {
		case "email":
			u.Email = aws.ToString(attr.Value)
		case "name":
			u.Name = aws.ToString(attr.Value)
		}
	}
	return u, nil
}

func (c *Cognito) SetTemporaryPassword(ctx context.Context, username, password string) error {
	_, err := c.api.AdminSetUserPassword(ctx, &cip.AdminSetUserPasswordInput{
		UserPoolId: aws.String(c.poolID),
		Username:   aws.String(username),
		Password:   aws.String(password),
		Permanent:  false,
	})
	if err != nil {
		return classify("set-password", err)
	}
	return nil
}

// classify 将 SDK 错误归入封闭的错误类别
func classify(op string, err error) error {
	var (
		notFound    *types.UserNotFoundException
		exists      *types.UsernameExistsException
		badParam    *types.InvalidParameterException
		badPassword *types.InvalidPasswordException
		throttled   *types.TooManyRequestsException
		internal    *types.InternalErrorException
		limit       *types.LimitExceededException
	)

	kind := KindUnknown
	switch {
	case errors.As(err, &notFound):
		kind = KindUserNotFound
	case errors.As(err, &exists):
		kind = KindUsernameExists
	case errors.As(err, &badParam):
		kind = KindInvalidParameter
	case errors.As(err, &badPassword):
		kind = KindInvalidPassword
	case errors.As(err, &throttled), errors.As(err, &internal), errors.As(err, &limit),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindUnavailable
	}

	return &Error{Kind: kind, Op: op, Err: err}
}
