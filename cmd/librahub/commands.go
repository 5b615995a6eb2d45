package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrsteele09/librahub-admin/admin"
	"github.com/jrsteele09/librahub-admin/auth"
	"github.com/jrsteele09/librahub-admin/internal/utils"
	"github.com/jrsteele09/librahub-admin/routes"
	"github.com/jrsteele09/librahub-admin/token/jwt"
	"github.com/jrsteele09/librahub-admin/users"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":                 {"-email E -password P", loginCmd},
	"logout":                {"", logoutCmd},
	"whoami":                {"", whoamiCmd},
	"refresh":               {"", refreshCmd},
	"register":              {"-email E -password P -first F -last L [-phone N] [-dob YYYY-MM-DD]", registerCmd},
	"verify-email":          {"-token T", verifyEmailCmd},
	"forgot-password":       {"-email E", forgotPasswordCmd},
	"reset-password":        {"-token T -password P -confirm P", resetPasswordCmd},
	"resend-verification":   {"-email E", resendVerificationCmd},
	"complete-registration": {"-token T -first F -last L", completeRegistrationCmd},
	"dashboard":             {"", dashboardCmd},
	"users":                 {"[-skip N] [-take N]", usersCmd},
	"user-create":           {"-email E -role R", userCreateCmd},
	"user-role":             {"-id ID (-add R | -remove R)", userRoleCmd},
	"user-disable":          {"-id ID -reason TEXT", userDisableCmd},
	"user-enable":           {"-id ID", userEnableCmd},
	"books":                 {"[-search TERM] [-page N] [-size N]", booksCmd},
	"book-price":            {"-id ID -price P -currency C [-promo P] [-vat R]", bookPriceCmd},
	"book-publish":          {"-id ID", bookPublishCmd},
	"book-unlist":           {"-id ID", bookUnlistCmd},
	"book-remove":           {"-id ID -reason TEXT", bookRemoveCmd},
	"book-cover":            {"-id ID -file PATH", bookCoverCmd},
	"book-edition":          {"-id ID -file PATH -format PDF|EPUB [-version N]", bookEditionCmd},
}

func printUsage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "usage: librahub <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-22s %s\n", name, commands[name].usage)
	}
}

func parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	for _, name := range required {
		if f := fs.Lookup(name); f == nil || f.Value.String() == "" {
			return fmt.Errorf("%w: -%s is required", errUsage, name)
		}
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireRoute restores the session and applies the route guard the
// equivalent page would have.
func requireRoute(ctx context.Context, a *app, role users.RoleType) error {
	if err := a.restore(ctx); err != nil {
		return err
	}
	d := routes.Protected(a.store.Snapshot(), role)
	if !d.Allow {
		return fmt.Errorf("not allowed here, redirected to %s", d.Redirect)
	}
	return nil
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("LIBRAHUB_PASSWORD"), "password, defaults to $LIBRAHUB_PASSWORD")
	if err := parse(fs, args, "email", "password"); err != nil {
		return err
	}

	sess, err := a.auth.Login(ctx, auth.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s, landing on %s\n", sess.User.DisplayName(), routes.RedirectPathForRole(&sess.User))
	return nil
}

func logoutCmd(ctx context.Context, a *app, _ []string) error {
	return a.auth.Logout(ctx)
}

func whoamiCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.restore(ctx); err != nil {
		return err
	}
	state := a.store.Snapshot()
	if !state.IsAuthenticated {
		fmt.Println("Not signed in")
		return nil
	}

	out := map[string]any{"user": state.User}
	if claims, err := jwt.Inspect(a.store.AccessToken()); err == nil {
		out["token"] = map[string]any{
			"expiresAt": claims.ExpiresAt,
			"expired":   claims.Expired(),
			"roles":     claims.Roles,
		}
	}
	return printJSON(out)
}

func refreshCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.restore(ctx); err != nil {
		return err
	}
	pair, err := a.auth.Refresh(ctx)
	if err != nil {
		return err
	}
	if exp, ok := pair.Expiry(); ok {
		fmt.Printf("Session renewed until %s\n", exp.Local().Format("2006-01-02 15:04"))
		return nil
	}
	fmt.Println("Session renewed")
	return nil
}

func registerCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	req := auth.RegisterRequest{}
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.Password, "password", "", "password")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	phone := fs.String("phone", "", "phone number")
	dob := fs.String("dob", "", "date of birth")
	if err := parse(fs, args, "email", "password"); err != nil {
		return err
	}
	req.Phone = utils.PtrIfSet(*phone)
	req.DateOfBirth = utils.PtrIfSet(*dob)

	if err := a.auth.Register(ctx, req); err != nil {
		return err
	}
	fmt.Println("Registered. Check your email for a verification link.")
	return nil
}

func verifyEmailCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("verify-email", flag.ContinueOnError)
	tok := fs.String("token", "", "verification token")
	if err := parse(fs, args, "token"); err != nil {
		return err
	}
	if err := a.auth.VerifyEmail(ctx, *tok); err != nil {
		return err
	}
	fmt.Println("Email verified")
	return nil
}

func forgotPasswordCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("forgot-password", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	if err := a.auth.ForgotPassword(ctx, *email); err != nil {
		return err
	}
	fmt.Println("If the account exists, a reset email is on its way.")
	return nil
}

func resetPasswordCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	req := auth.ResetPasswordRequest{}
	fs.StringVar(&req.Token, "token", "", "reset token")
	fs.StringVar(&req.NewPassword, "password", "", "new password")
	fs.StringVar(&req.ConfirmPassword, "confirm", "", "new password again")
	if err := parse(fs, args, "token"); err != nil {
		return err
	}
	if err := a.auth.ResetPassword(ctx, req); err != nil {
		return err
	}
	fmt.Println("Password reset")
	return nil
}

func resendVerificationCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("resend-verification", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	msg, err := a.auth.ResendVerificationEmail(ctx, auth.ResendVerificationEmailRequest{Email: *email})
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func completeRegistrationCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("complete-registration", flag.ContinueOnError)
	req := auth.CompleteRegistrationRequest{}
	fs.StringVar(&req.Token, "token", "", "invite token")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	if err := parse(fs, args, "token"); err != nil {
		return err
	}
	if err := a.auth.CompleteRegistration(ctx, req); err != nil {
		return err
	}
	fmt.Println("Registration complete. You can now sign in.")
	return nil
}

func dashboardCmd(ctx context.Context, a *app, _ []string) error {
	if err := requireRoute(ctx, a, users.RoleAdmin); err != nil {
		return err
	}
	d := a.admin.Dashboard(ctx)
	if err := printJSON(d); err != nil {
		return err
	}
	if msg := d.Err(); msg != "" {
		return errors.New(msg)
	}
	return nil
}

func usersCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("users", flag.ContinueOnError)
	skip := fs.Int("skip", 0, "accounts to skip")
	take := fs.Int("take", admin.DefaultUsersPageSize, "page size")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleAdmin); err != nil {
		return err
	}
	list, err := a.admin.ListUsers(ctx, *skip, *take)
	if err != nil {
		return err
	}
	return printJSON(list)
}

func userCreateCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("user-create", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	role := fs.String("role", string(users.RoleUser), "User, Librarian or Admin")
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleAdmin); err != nil {
		return err
	}
	id, err := a.admin.CreateUser(ctx, admin.CreateUserRequest{Email: *email, Role: users.RoleType(*role)})
	if err != nil {
		return err
	}
	fmt.Printf("Invited %s (%s)\n", *email, id)
	return nil
}

func userRoleCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("user-role", flag.ContinueOnError)
	id := fs.String("id", "", "user id")
	add := fs.String("add", "", "role to assign")
	remove := fs.String("remove", "", "role to remove")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}
	if (*add == "") == (*remove == "") {
		return fmt.Errorf("%w: exactly one of -add and -remove", errUsage)
	}
	if err := requireRoute(ctx, a, users.RoleAdmin); err != nil {
		return err
	}
	if *add != "" {
		return a.admin.AssignRole(ctx, *id, users.RoleType(*add))
	}
	return a.admin.RemoveRole(ctx, *id, users.RoleType(*remove))
}

func userDisableCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("user-disable", flag.ContinueOnError)
	id := fs.String("id", "", "user id")
	reason := fs.String("reason", "", "why the account is disabled")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleAdmin); err != nil {
		return err
	}
	return a.admin.DisableUser(ctx, *id, *reason)
}

func userEnableCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("user-enable", flag.ContinueOnError)
	id := fs.String("id", "", "user id")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleAdmin); err != nil {
		return err
	}
	return a.admin.EnableUser(ctx, *id)
}

func booksCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("books", flag.ContinueOnError)
	q := admin.BookQuery{}
	fs.StringVar(&q.SearchTerm, "search", "", "title search")
	fs.IntVar(&q.Page, "page", 1, "page, from 1")
	fs.IntVar(&q.PageSize, "size", admin.DefaultBooksPageSize, "page size")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleLibrarian); err != nil {
		return err
	}
	list, err := a.admin.ListBooks(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(list)
}

func bookPriceCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("book-price", flag.ContinueOnError)
	id := fs.String("id", "", "book id")
	price := fs.Float64("price", 0, "regular price")
	currency := fs.String("currency", "", "ISO currency code")
	promo := fs.Float64("promo", 0, "promotional price, 0 for none")
	vat := fs.Float64("vat", -1, "VAT rate between 0 and 1")
	if err := parse(fs, args, "id", "currency"); err != nil {
		return err
	}
	req := admin.SetPricingRequest{Price: *price, Currency: strings.ToUpper(*currency)}
	if *promo > 0 {
		req.PromoPrice = promo
	}
	if *vat >= 0 {
		req.VatRate = vat
	}
	if err := requireRoute(ctx, a, users.RoleLibrarian); err != nil {
		return err
	}
	book, err := a.admin.SetPricing(ctx, *id, req)
	if err != nil {
		return err
	}
	return printJSON(book)
}

func bookPublishCmd(ctx context.Context, a *app, args []string) error {
	return bookTransition(ctx, a, "book-publish", args, a.admin.PublishBook)
}

func bookUnlistCmd(ctx context.Context, a *app, args []string) error {
	return bookTransition(ctx, a, "book-unlist", args, a.admin.UnlistBook)
}

func bookTransition(ctx context.Context, a *app, name string, args []string, fn func(context.Context, string) (*admin.BookDetails, error)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "book id")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleLibrarian); err != nil {
		return err
	}
	book, err := fn(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", book.Title, book.Status)
	return nil
}

func bookRemoveCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("book-remove", flag.ContinueOnError)
	id := fs.String("id", "", "book id")
	reason := fs.String("reason", "", "why the book is removed")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleLibrarian); err != nil {
		return err
	}
	return a.admin.RemoveBook(ctx, *id, *reason)
}

func bookCoverCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("book-cover", flag.ContinueOnError)
	id := fs.String("id", "", "book id")
	path := fs.String("file", "", "image file")
	if err := parse(fs, args, "id", "file"); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleLibrarian); err != nil {
		return err
	}
	return withFile(*path, func(name string, r io.Reader) error {
		url, err := a.admin.UploadCover(ctx, *id, name, r)
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	})
}

func bookEditionCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("book-edition", flag.ContinueOnError)
	id := fs.String("id", "", "book id")
	path := fs.String("file", "", "edition file")
	format := fs.String("format", "", "PDF or EPUB")
	version := fs.Int("version", 0, "edition version, 0 to let the server choose")
	if err := parse(fs, args, "id", "file"); err != nil {
		return err
	}
	if err := requireRoute(ctx, a, users.RoleLibrarian); err != nil {
		return err
	}
	return withFile(*path, func(name string, r io.Reader) error {
		editionID, err := a.admin.UploadEdition(ctx, *id, name, r, strings.ToUpper(*format), utils.PtrIfSet(*version))
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded edition %s\n", editionID)
		return nil
	})
}

func withFile(path string, fn func(name string, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(filepath.Base(path), f)
}
