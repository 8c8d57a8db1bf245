package admin

import (
	"errors"
	"fmt"
	"strings"

	"comercio-backend/internal/auth"
	"comercio-backend/internal/database"
	"comercio-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type BranchResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

type CreateBranchRequest struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Phone   *string `json:"phone"` // Opcional
}

type UpdateBranchRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

type CreateOperatorRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type OperatorResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	BranchID  *uint  `json:"branch_id"`
	CreatedAt string `json:"created_at"`
}

func tenantIDFromCtx(c *fiber.Ctx) (uint, error) {
	tenantID, ok := c.Locals(auth.CtxTenantIDKey).(uint)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "No se pudo determinar el comercio")
	}
	return tenantID, nil
}

func branchToResponse(b *models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Address:   b.Address,
		Phone:     b.Phone,
		CreatedAt: b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ----------------------------------------
// CRUD de sucursales (solo admin del tenant)
// ----------------------------------------

func CreateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var body CreateBranchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "El nombre de la sucursal es obligatorio")
		}

		branch := models.Branch{
			TenantID: tenantID,
			Name:     body.Name,
			Address:  body.Address,
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Create(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear la sucursal")
		}

		return c.Status(fiber.StatusCreated).JSON(branchToResponse(&branch))
	}
}

func ListBranchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var branches []models.Branch
		if err := database.DB.Where("tenant_id = ?", tenantID).Order("name asc").Find(&branches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar las sucursales")
		}

		res := make([]BranchResponse, 0, len(branches))
		for i := range branches {
			res = append(res, branchToResponse(&branches[i]))
		}
		return c.JSON(res)
	}
}

func GetBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var branch models.Branch
		if err := database.DB.Where("id = ? AND tenant_id = ?", c.Params("id"), tenantID).First(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sucursal no encontrada")
		}

		return c.JSON(branchToResponse(&branch))
	}
}

func UpdateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var branch models.Branch
		if err := database.DB.Where("id = ? AND tenant_id = ?", c.Params("id"), tenantID).First(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sucursal no encontrada")
		}

		var body UpdateBranchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "El nombre no puede quedar vacío")
			}
			branch.Name = name
		}
		if body.Address != nil {
			branch.Address = *body.Address
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.Save(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo actualizar la sucursal")
		}

		return c.JSON(branchToResponse(&branch))
	}
}

func DeleteBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var branch models.Branch
		if err := database.DB.Where("id = ? AND tenant_id = ?", c.Params("id"), tenantID).First(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sucursal no encontrada")
		}

		// Las sesiones de caja nunca se borran (requisito de auditoría); una
		// sucursal con historial no se puede eliminar.
		var sessions int64
		database.DB.Model(&models.CashSession{}).Where("branch_id = ?", branch.ID).Count(&sessions)
		if sessions > 0 {
			return fiber.NewError(fiber.StatusConflict, "La sucursal tiene cajas registradas y no puede eliminarse")
		}

		if err := database.DB.Delete(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo eliminar la sucursal")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ----------------------------------------
// Operadores de sucursal
// ----------------------------------------

func CreateBranchOperatorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var branch models.Branch
		if err := database.DB.Where("id = ? AND tenant_id = ?", c.Params("id"), tenantID).First(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sucursal no encontrada")
		}

		var body CreateOperatorRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		body.Name = strings.TrimSpace(body.Name)
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		if body.Name == "" || body.Email == "" || len(body.Password) < 8 {
			return fiber.NewError(fiber.StatusBadRequest, "Nombre, email y contraseña (mín. 8) son obligatorios")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo procesar la contraseña")
		}

		user := models.User{
			TenantID:     tenantID,
			BranchID:     &branch.ID,
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleOperator,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "Ya existe un usuario con ese email")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear el operador")
		}

		return c.Status(fiber.StatusCreated).JSON(OperatorResponse{
			ID:        user.ID,
			Name:      user.Name,
			Email:     user.Email,
			Role:      string(user.Role),
			BranchID:  user.BranchID,
			CreatedAt: user.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
}

func ListBranchOperatorsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var branchID uint
		if _, err := fmt.Sscan(c.Params("id"), &branchID); err != nil || branchID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var users []models.User
		if err := database.DB.Where("tenant_id = ? AND branch_id = ? AND role = ?", tenantID, branchID, models.RoleOperator).
			Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los operadores")
		}

		res := make([]OperatorResponse, 0, len(users))
		for _, u := range users {
			res = append(res, OperatorResponse{
				ID:        u.ID,
				Name:      u.Name,
				Email:     u.Email,
				Role:      string(u.Role),
				BranchID:  u.BranchID,
				CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return c.JSON(res)
	}
}
