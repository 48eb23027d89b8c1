// Package testutil wires the core services on test stores and creates fixtures.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/appointment"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/leave"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/transfer"
	"github.com/trezcool/shule/core/user"
	appfs "github.com/trezcool/shule/fs"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/payment"
	"github.com/trezcool/shule/storage/database"
	"github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/storage/database/sqlboiler"
)

// GatewayServerKey is the server key the FakeGateway signs notifications with.
const GatewayServerKey = "SB-Mid-server-test"

var parseTemplatesOnce sync.Once

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// NewValidator returns a validator with the custom validations of the application.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

// Repos are the repositories an Env runs on.
type Repos struct {
	Tx           core.Transactor
	Users        user.Repository
	Schools      school.Repository
	Students     student.Repository
	Fees         fee.Repository
	Transfers    transfer.Repository
	Leaves       leave.Repository
	Appointments appointment.Repository
}

// Env holds every core service wired on the same Repos.
type Env struct {
	Repos

	Conf     *core.Config
	Logger   core.Logger
	Validate *validator.Validate
	MailSvc  core.EmailService
	Gateway  *FakeGateway
	Relay    *FakeRelay

	UserSvc        user.ServiceInterface
	SchoolSvc      *school.Service
	StudentSvc     *student.Service
	FeeSvc         *fee.Service
	TransferSvc    *transfer.Service
	LeaveSvc       *leave.Service
	AppointmentSvc *appointment.Service
}

// NewEnv returns an Env on a fresh in-memory store.
func NewEnv(t *testing.T) *Env {
	db := inmemdb.Open()
	return NewEnvWith(t, Repos{
		Tx:           db,
		Users:        inmemdb.NewUserRepository(db),
		Schools:      inmemdb.NewSchoolRepository(db),
		Students:     inmemdb.NewStudentRepository(db),
		Fees:         inmemdb.NewFeeRepository(db),
		Transfers:    inmemdb.NewTransferRepository(db),
		Leaves:       inmemdb.NewLeaveRepository(db),
		Appointments: inmemdb.NewAppointmentRepository(db),
	})
}

// NewSQLiteEnv returns an Env on a fresh, migrated, in-memory sqlite database.
func NewSQLiteEnv(t *testing.T) *Env {
	db := OpenTestDB(t)
	engine := database.EngineSqlite
	return NewEnvWith(t, Repos{
		Tx:           database.NewTransactor(db),
		Users:        boiledrepos.NewUserRepository(db, engine),
		Schools:      boiledrepos.NewSchoolRepository(db, engine),
		Students:     boiledrepos.NewStudentRepository(db, engine),
		Fees:         boiledrepos.NewFeeRepository(db, engine),
		Transfers:    boiledrepos.NewTransferRepository(db, engine),
		Leaves:       boiledrepos.NewLeaveRepository(db, engine),
		Appointments: boiledrepos.NewAppointmentRepository(db, engine),
	})
}

func NewEnvWith(t *testing.T, repos Repos) *Env {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Payment.MidtransServerKey = GatewayServerKey
	logger := NewLogger(conf)
	parseTemplatesOnce.Do(func() {
		core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir, logger)
	})

	env := &Env{
		Repos:    repos,
		Conf:     conf,
		Logger:   logger,
		Validate: NewValidator(),
		MailSvc:  emailsvc.NewConsoleServiceMock(conf, logger),
		Gateway:  &FakeGateway{},
		Relay:    &FakeRelay{},
	}
	env.UserSvc = user.NewServiceMock(repos.Users, env.MailSvc, conf)
	env.SchoolSvc = school.NewService(repos.Schools)
	env.FeeSvc = fee.NewService(repos.Tx, repos.Fees, repos.Students, repos.Users, env.Gateway, logger)
	env.StudentSvc = student.NewService(repos.Tx, repos.Students, env.UserSvc, repos.Schools, env.FeeSvc)
	env.TransferSvc = transfer.NewService(repos.Tx, repos.Transfers, repos.Students, env.UserSvc, env.MailSvc, logger)
	env.LeaveSvc = leave.NewService(repos.Tx, repos.Leaves, env.UserSvc, env.MailSvc, logger)
	env.AppointmentSvc = appointment.NewService(repos.Appointments, repos.Students, env.UserSvc, env.Relay, logger)
	return env
}

// OpenTestDB opens a private in-memory sqlite database and migrates it.
// The test is skipped when sqlite is not available (e.g. built without cgo).
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conf := core.NewTestConfig()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conf.Database.Name = fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())

	db, err := database.Open(conf)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err = database.Migrate(db, database.EngineSqlite); err != nil {
		_ = db.Close()
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// FakeGateway opens checkouts without any network call and signs like the real gateway.
type FakeGateway struct {
	mu     sync.Mutex
	Orders []fee.Order
	Err    error // returned by CreateOrder when set
}

var _ fee.Gateway = (*FakeGateway)(nil)

func (gw *FakeGateway) CreateOrder(ctx context.Context, order fee.Order, customer fee.Customer) (string, string, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.Err != nil {
		return "", "", gw.Err
	}
	gw.Orders = append(gw.Orders, order)
	token := "token-" + order.OrderID
	return token, "https://app.sandbox.midtrans.com/snap/v2/vtweb/" + token, nil
}

func (gw *FakeGateway) VerifySignature(n fee.Notification) bool {
	return n.SignatureKey != "" &&
		n.SignatureKey == paymentsvc.Signature(n.OrderID, n.StatusCode, n.GrossAmount, GatewayServerKey)
}

// Notification returns a correctly signed notification for the Order,
// reporting the whole amount Midtrans charges as it does ("67.00").
func (gw *FakeGateway) Notification(order fee.Order, transactionStatus string) fee.Notification {
	gross := order.Amount.Ceil().StringFixed(2)
	n := fee.Notification{
		OrderID:           order.OrderID,
		StatusCode:        "200",
		GrossAmount:       gross,
		TransactionID:     "trx-" + order.OrderID,
		TransactionStatus: transactionStatus,
		FraudStatus:       "accept",
	}
	n.SignatureKey = paymentsvc.Signature(n.OrderID, n.StatusCode, n.GrossAmount, GatewayServerKey)
	return n
}

type Published struct {
	Room    string
	Payload []byte
}

// FakeRelay records what is published.
type FakeRelay struct {
	mu        sync.Mutex
	published []Published
	Err       error
}

var _ appointment.Relay = (*FakeRelay)(nil)

func (r *FakeRelay) Publish(ctx context.Context, room string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.published = append(r.published, Published{Room: room, Payload: append([]byte(nil), payload...)})
	return nil
}

func (r *FakeRelay) Published() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.published...)
}

// SuperAdmin is a Principal allowed to do anything.
func SuperAdmin() user.Principal {
	return user.Principal{UserID: "00000000-0000-0000-0000-000000000000", Roles: []string{user.RoleSuperAdmin}}
}

func CreateSchool(t *testing.T, env *Env, name, code string) school.School {
	t.Helper()
	sch, err := env.SchoolSvc.Create(context.Background(), SuperAdmin(), school.NewSchool{Name: name, Code: code})
	if err != nil {
		t.Fatalf("CreateSchool(): %v", err)
	}
	return sch
}

func CreateClass(t *testing.T, env *Env, schoolID, name, section string) school.Class {
	t.Helper()
	cls, err := env.SchoolSvc.CreateClass(context.Background(), SuperAdmin(), schoolID, school.NewClass{Name: name, Section: section})
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	return cls
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateMember creates an active User of the School with the given roles and returns its Principal.
func CreateMember(t *testing.T, env *Env, schoolID, uname string, roles ...string) (user.User, user.Principal) {
	t.Helper()
	usr := CreateUser(t, env.Users, schoolID, "User "+uname, uname, uname+"@test.cd", "secret", roles, true)
	return usr, user.PrincipalOf(usr)
}

// EnrollStudent enrols a Student with the given fee terms and returns it with its Principal.
func EnrollStudent(
	t *testing.T,
	env *Env,
	schoolID, admissionNo, parentID string,
	totalFee, discountPercent decimal.Decimal,
) (student.Student, user.Principal) {
	t.Helper()
	uname := "student_" + strings.ToLower(admissionNo)
	stud, err := env.StudentSvc.Enroll(context.Background(), SuperAdmin(), student.NewStudent{
		SchoolID:    schoolID,
		ParentID:    parentID,
		AdmissionNo: admissionNo,
		Name:        "Student " + admissionNo,
		Username:    uname,
		Email:       uname + "@test.cd",
		Password:    "Pwd.123!",
		Fee:         student.FeeTerms{TotalFee: totalFee, DiscountPercent: discountPercent},
	})
	if err != nil {
		t.Fatalf("EnrollStudent(): %v", err)
	}
	usr, err := env.UserSvc.GetByID(context.Background(), stud.UserID)
	if err != nil {
		t.Fatalf("EnrollStudent(): %v", err)
	}
	p := user.PrincipalOf(usr)
	p.StudentID = stud.ID
	return stud, p
}
